package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/logger"
)

const (
	TaskGrant = "rewards:grant"
	Queue     = "rewards"
)

// Enqueuer is the slice of *asynq.Client the awarder needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueAwarder defers grants to an asynq worker.
type QueueAwarder struct {
	client Enqueuer
	log    *zap.Logger
}

func NewQueueAwarder(client Enqueuer, log *zap.Logger) *QueueAwarder {
	return &QueueAwarder{client: client, log: logger.OrNamed(log, "rewards")}
}

var _ Awarder = (*QueueAwarder)(nil)

// Award enqueues g with a task id derived from the grant, so a repeat
// enqueue is absorbed by the broker.
func (q *QueueAwarder) Award(ctx context.Context, g Grant) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskGrant, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(g.Key()),
		asynq.Queue(Queue),
		asynq.MaxRetry(10),
		asynq.Retention(24*time.Hour),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue grant %s: %w", g.Key(), err)
	}
	return nil
}

// HandleGrantTask is the worker side of QueueAwarder.
func (l *Ledger) HandleGrantTask(ctx context.Context, t *asynq.Task) error {
	var g Grant
	if err := json.Unmarshal(t.Payload(), &g); err != nil {
		return fmt.Errorf("decode grant: %v: %w", err, asynq.SkipRetry)
	}
	return l.Award(ctx, g)
}

// Worker consumes grant tasks into the ledger.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, ledger *Ledger, concurrency int, log *zap.Logger) (*Worker, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is empty")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	log = logger.OrNamed(log, "rewards.worker")

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Warn("grant task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
		Logger: log.Sugar(),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskGrant, ledger.HandleGrantTask)
	return &Worker{server: srv, mux: mux}, nil
}

func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// NewClient builds the asynq client that feeds QueueAwarder.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return asynq.NewClient(opt), nil
}
