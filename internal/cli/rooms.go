package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/services/rooms"
)

// NewRoomsCommand groups the breakout room seeding commands.
func NewRoomsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Manage breakout rooms",
	}
	cmd.AddCommand(newRoomsCreateCommand(rootOpts))
	cmd.AddCommand(newRoomsListCommand(rootOpts))
	return cmd
}

func newRoomsCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		eventID  string
		name     string
		capacity int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a room for an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var limit *int
			if cmd.Flags().Changed("capacity") {
				if capacity < 1 {
					return fmt.Errorf("capacity must be at least 1")
				}
				limit = &capacity
			}
			return withSession(cmd, rootOpts, func(s *Session) error {
				svc := rooms.NewService(s.Registry.Rooms, events.Discard, s.Log)
				room, err := svc.CreateRoom(cmd.Context(), eventID, name, limit)
				if err != nil {
					return err
				}
				return emit(cmd, rootOpts, room, "✓ Created room %s (%s)", room.ID, room.Name)
			})
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "event id (required)")
	cmd.Flags().StringVar(&name, "name", "", "room name (required)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "maximum participants")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRoomsListCommand(rootOpts *RootOptions) *cobra.Command {
	var eventID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rooms of an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *Session) error {
				svc := rooms.NewService(s.Registry.Rooms, events.Discard, s.Log)
				list, err := svc.ListRooms(cmd.Context(), eventID)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return emit(cmd, rootOpts, list, "")
				}
				for _, r := range list {
					capacity := "unlimited"
					if r.Capacity != nil {
						capacity = fmt.Sprintf("%d", *r.Capacity)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.ID, r.Name, capacity)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventID, "event", "", "event id (required)")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
