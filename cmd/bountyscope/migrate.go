package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/validation"
)

func createMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the run archive schema",
		Long: `The archive applies pending migrations whenever it is opened. These
commands show which ones are applied and revert the most recent ones.`,
	}

	cmd.AddCommand(
		createMigrateStatusCommand(opts),
		createMigrateDownCommand(opts),
	)
	return cmd
}

func createMigrateStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.loadApp()
			if err != nil {
				return err
			}

			steps, err := app.ArchiveSchema(cmd.Context())
			if err != nil {
				return err
			}

			data := pterm.TableData{{"Version", "Name", "Status", "Applied At"}}
			for _, s := range steps {
				status, appliedAt := "Pending", ""
				if s.Applied {
					status = "Applied"
					appliedAt = s.AppliedAt.Local().Format(time.DateTime)
				}
				data = append(data, []string{fmt.Sprintf("%03d", s.Version), s.Name, status, appliedAt})
			}
			return renderTable(cmd.OutOrStdout(), data)
		},
	}
}

func createMigrateDownCommand(opts *rootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations, dropping the archived history they hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.IntegerRange(steps, 1, 100, "steps"); err != nil {
				return bserrors.ValidationError("%v", err)
			}

			app, err := opts.loadApp()
			if err != nil {
				return err
			}

			if err := app.RollbackArchive(cmd.Context(), steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", steps)
			return nil
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")
	return cmd
}
