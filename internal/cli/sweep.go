package cli

import (
	"github.com/spf13/cobra"

	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/services/expiry"
	"github.com/jgirmay/livemesh/pkg/services/presence"
)

// NewSweepCommand creates the sweep command. It runs one expiry pass; no
// sockets are connected to this process, so offline notices are not sent.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue suggestions, requests and stale presence once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *Session) error {
				pres := presence.NewService(s.Registry.Presence, nil, events.Discard, nil, s.Log)
				sw := expiry.NewSweeper(s.Registry.Matches, s.Registry.Connections, pres,
					s.Config.Presence.StaleAfter, s.Config.Sweep.Interval, nil, s.Log)

				rep, err := sw.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, rootOpts, rep,
					"✓ Expired %d suggestions, %d match requests, %d connection requests; %d attendees marked offline",
					rep.Suggestions, rep.Requests, rep.Connections, rep.Presence)
			})
		},
	}
}
