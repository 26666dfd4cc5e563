package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jgirmay/livemesh/pkg/models"
)

// ProfileFile is the YAML document accepted by "profiles import".
type ProfileFile struct {
	Profiles []models.AttendeeProfile `yaml:"profiles"`
}

// NewProfilesCommand groups the scoring profile commands.
func NewProfilesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage the attendee profiles used for match scoring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert attendee profiles from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, rootOpts, func(s *Session) error {
				for i := range profiles {
					if err := s.Registry.Profiles.Upsert(cmd.Context(), &profiles[i]); err != nil {
						return fmt.Errorf("import %s: %w", profiles[i].UserID, err)
					}
				}
				return emit(cmd, rootOpts, map[string]int{"imported": len(profiles)},
					"✓ Imported %d profiles", len(profiles))
			})
		},
	})
	return cmd
}

func loadProfiles(path string) ([]models.AttendeeProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var file ProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range file.Profiles {
		if strings.TrimSpace(p.UserID) == "" {
			return nil, fmt.Errorf("parse %s: profile %d has no userId", path, i+1)
		}
		if (p.Latitude == nil) != (p.Longitude == nil) {
			return nil, fmt.Errorf("parse %s: profile %s needs both latitude and longitude", path, p.UserID)
		}
	}
	return file.Profiles, nil
}
