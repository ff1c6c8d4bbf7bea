package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perplext/bountyscope/pkg/config"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
)

func createInitCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return bserrors.InternalError("failed to resolve config path", err)
				}
			}

			if err := config.WriteDefault(path, force); err != nil {
				return bserrors.ValidationError("%v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
