package main

import (
	"github.com/spf13/cobra"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/validation"
)

func createRunsCommand(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		programs string
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show archived fetch runs",
		Long: `Without arguments, runs lists the most recent fetch runs. With a run ID
it shows the outcome of every platform pipeline of that run, or with
--programs the program handles one platform emitted in it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.IntegerRange(limit, 1, 1000, "limit"); err != nil {
				return bserrors.ValidationError("%v", err)
			}

			if programs != "" && len(args) == 0 {
				return bserrors.ValidationError("--programs requires a run ID")
			}

			app, err := opts.loadApp()
			if err != nil {
				return err
			}

			if len(args) == 1 && programs != "" {
				handles, err := app.Programs(cmd.Context(), args[0], programs)
				if err != nil {
					return err
				}
				return renderHandles(cmd.OutOrStdout(), handles)
			}

			if len(args) == 1 {
				run, records, err := app.Pipelines(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return renderPipelines(cmd.OutOrStdout(), run, records)
			}

			runs, err := app.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&programs, "programs", "", "List the program handles a platform emitted in the run")
	return cmd
}
