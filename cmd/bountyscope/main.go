package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perplext/bountyscope/internal/core"
	"github.com/perplext/bountyscope/pkg/config"
	bserrors "github.com/perplext/bountyscope/pkg/errors"
	"github.com/perplext/bountyscope/pkg/utils"
)

func main() {
	// SIGINT and SIGTERM stop in-flight waits through the context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	opts := &rootOptions{}
	rootCmd := createRootCommand(opts)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	opts.close()

	if err != nil {
		// Cobra already prints usage on flag errors, just exit
		if strings.Contains(err.Error(), "unknown flag") ||
			strings.Contains(err.Error(), "invalid argument") {
			os.Exit(1)
		}
		logger := opts.logger()
		core.ExitOnError(err, logger)
	}
}

// rootOptions holds the persistent flags and the lazily built app
type rootOptions struct {
	configPath string
	debug      bool
	app        *core.App
}

// loadApp reads the configuration once and builds the app from it
func (o *rootOptions) loadApp() (*core.App, error) {
	if o.app != nil {
		return o.app, nil
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, bserrors.FatalError("failed to load configuration", err)
	}
	if o.debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}

	o.app = core.NewApp(cfg)
	return o.app, nil
}

func (o *rootOptions) logger() *utils.Logger {
	if o.app != nil {
		return o.app.Logger()
	}
	return utils.NewLogger("", o.debug)
}

func (o *rootOptions) close() {
	if o.app != nil {
		o.app.Close()
	}
}

func createRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bountyscope",
		Short: "Fetch and normalize bug bounty program scopes",
		Long: `BountyScope pulls the public program listings of HackerOne, Bugcrowd,
YesWeHack and Intigriti, completes each program with its scope details and
writes one normalized brief per platform.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ~/.bountyscope/config.yaml when present)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		createFetchCommand(opts),
		createRunsCommand(opts),
		createInitCommand(opts),
		createMigrateCommand(opts),
		createVersionCommand(),
	)

	return rootCmd
}
