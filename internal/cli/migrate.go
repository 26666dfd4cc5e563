package cli

import (
	"github.com/spf13/cobra"

	"github.com/jgirmay/livemesh/pkg/database"
	"github.com/jgirmay/livemesh/pkg/models"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(s *Session) error {
				if err := database.Migrate(s.DB); err != nil {
					return err
				}
				n := len(models.All())
				return emit(cmd, rootOpts, map[string]int{"tables": n}, "✓ Migrated %d tables", n)
			})
		},
	}
}
