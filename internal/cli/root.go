// Package cli holds the command line interface: the server plus one-shot
// commands working directly on the local catalog.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/epubshelf/internal/config"
	"github.com/mrlokans/epubshelf/internal/entrypoint"
)

// NewRootCommand builds the command tree. Running without a subcommand
// starts the server.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "epubshelf",
		Short:         "Offline-first EPUB library and reader engine",
		Long:          "Import, read and synchronize an EPUB library against a remote catalog service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Run: func(cmd *cobra.Command, args []string) {
			entrypoint.Run(config.NewConfig(), version)
		},
	}

	root.AddCommand(
		newServeCommand(version),
		newImportCommand(),
		newListCommand(),
		newSyncCommand(),
		newReadCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local API server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			entrypoint.Run(config.NewConfig(), version)
		},
	}
}

// openApp wires the components one-shot commands need, without task
// workers or the connectivity monitor.
func openApp(cmd *cobra.Command, connect bool) (*entrypoint.App, error) {
	app, err := entrypoint.NewApp(config.NewConfig(), entrypoint.Options{QuietDB: true})
	if err != nil {
		return nil, err
	}
	if connect {
		app.Connect(commandContext(cmd))
	}
	return app, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
