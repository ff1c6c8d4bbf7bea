package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/perplext/bountyscope/internal/core"
	"github.com/perplext/bountyscope/internal/platform"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/validation"
)

func createFetchCommand(opts *rootOptions) *cobra.Command {
	var fetchOpts core.FetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every selected platform and write its brief",
		Long: `Fetch lists the programs of every selected platform concurrently,
enriches each one with its detail record and writes:

  <output>/<platform>.json          raw enriched records
  <output>/brief/<platform>.json    normalized programs

A platform that fails does not stop the others. The command exits non-zero
when at least one platform failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Checked before the configuration so typos fail fast
			if _, err := validation.Platforms(fetchOpts.Platforms, platform.Names()); err != nil {
				return bserrors.ValidationError("%v", err)
			}
			if fetchOpts.MaxPages < 0 {
				return bserrors.ValidationError("--max-pages must not be negative")
			}

			app, err := opts.loadApp()
			if err != nil {
				return err
			}

			result, err := app.Fetch(cmd.Context(), fetchOpts)
			if err != nil {
				return err
			}

			app.Logger().Info("Fetch finished: %s", core.Describe(result.Report))
			renderReport(cmd.OutOrStdout(), result)
			return result.Report.Err()
		},
	}

	cmd.Flags().StringSliceVarP(&fetchOpts.Platforms, "platform", "p", nil,
		"Platforms to fetch ("+strings.Join(platform.Names(), ", ")+"); default all")
	cmd.Flags().StringVarP(&fetchOpts.OutputDir, "output", "o", "", "Output directory (overrides output_dir)")
	cmd.Flags().StringVar(&fetchOpts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&fetchOpts.NoArchive, "no-archive", false, "Do not record the run in the archive")
	cmd.Flags().IntVar(&fetchOpts.MaxPages, "max-pages", 0, "Upper bound on pages per list endpoint (0 for the default)")
	cmd.Flags().BoolVar(&fetchOpts.NoScopeLists, "no-scope-lists", false, "Skip the domain and wildcard lists")

	return cmd
}
