// Package cli implements livemeshctl, the operator tool for schema
// migration, one-off sweeps and seeding rooms and scoring profiles.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/database"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/repository"
)

// Session is an open database plus the configuration it came from.
type Session struct {
	Config   *config.Config
	DB       *gorm.DB
	Registry *repository.Registry
	Log      *zap.Logger
	Close    func()
}

// Connector opens a Session. Tests substitute an in-memory database.
type Connector func(ctx context.Context) (*Session, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Connect Connector
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the livemeshctl command wired to the configured database.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith is NewRootCommand with an explicit connector.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.Connect == nil {
		opts.Connect = func(ctx context.Context) (*Session, error) {
			return connect(ctx, opts.Verbose)
		}
	}

	cmd := &cobra.Command{
		Use:   "livemeshctl",
		Short: "Operate a livemesh deployment",
		Long:  "Operator commands for the live event presence and matchmaking service.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewRoomsCommand(opts))
	cmd.AddCommand(NewProfilesCommand(opts))

	return cmd
}

func connect(ctx context.Context, verbose bool) (*Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if verbose {
		if err := logger.Init(cfg.Server.Env); err != nil {
			return nil, err
		}
		log = logger.L()
	}

	db, err := database.Open(cfg.Database, verbose)
	if err != nil {
		return nil, err
	}
	reg := repository.NewRegistry(db)
	if err := reg.Initialize(); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return &Session{
		Config:   cfg,
		DB:       db,
		Registry: reg,
		Log:      log,
		Close:    func() { _ = reg.Close() },
	}, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
