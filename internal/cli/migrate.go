package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/repo"
)

// NewMigrateCmd создаёт команды миграций схемы истории.
func NewMigrateCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run history schema (uses DB_URL)",
	}

	dsn := func() string {
		if v := repo.DSNFromEnv(); v != "" {
			return v
		}
		return repo.DefaultDSN
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := repo.Migrate(dsn()); err != nil {
					return err
				}
				outputFn().Success("Migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := repo.MigrateDown(dsn()); err != nil {
					return err
				}
				outputFn().Success("Latest migration rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := repo.MigrateVersion(dsn())
				if err != nil {
					return fmt.Errorf("migration version: %w", err)
				}
				outputFn().Print(
					[]string{"VERSION", "DIRTY"},
					[][]string{{strconv.FormatUint(uint64(version), 10), strconv.FormatBool(dirty)}},
					map[string]any{"version": version, "dirty": dirty},
				)
				return nil
			},
		},
	)

	return cmd
}
