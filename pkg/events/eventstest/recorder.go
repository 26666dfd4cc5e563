// Package eventstest records published messages for assertions.
package eventstest

import (
	"encoding/json"
	"sync"

	"github.com/jgirmay/livemesh/pkg/events"
)

// Published is one captured Publish call.
type Published struct {
	Scope   events.Scope
	Exclude events.Exclude
	Message any
	Fields  map[string]any
}

// Type returns the message's "type" field.
func (p Published) Type() events.MessageType {
	t, _ := p.Fields["type"].(string)
	return events.MessageType(t)
}

// Recorder is an events.Publisher that keeps everything it is given.
type Recorder struct {
	mu   sync.Mutex
	msgs []Published
}

func (r *Recorder) Publish(scope events.Scope, msg any, exclude events.Exclude) {
	var raw []byte
	if b, ok := msg.([]byte); ok {
		raw = b
	} else {
		raw, _ = json.Marshal(msg)
	}
	fields := map[string]any{}
	_ = json.Unmarshal(raw, &fields)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Published{Scope: scope, Exclude: exclude, Message: msg, Fields: fields})
}

// All returns a copy of every captured publish.
func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.msgs...)
}

// OfType filters captured publishes by message type.
func (r *Recorder) OfType(t events.MessageType) []Published {
	var out []Published
	for _, p := range r.All() {
		if p.Type() == t {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
