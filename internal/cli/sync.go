package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/entities"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local library with the remote catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			// The run below is the reconciliation; skip the one a reconnect would start.
			app.Coordinator.SetOnSynced(func(context.Context) {})

			out := cmd.OutOrStdout()
			switch app.Connect(ctx) {
			case catalogsync.StateOffline:
				fmt.Fprintln(out, catalogsync.MsgOffline)
				return catalogsync.ErrOffline
			case catalogsync.StateOnlineDegraded:
				fmt.Fprintln(out, catalogsync.MsgBackendUnavailable)
				return fmt.Errorf("remote catalog at %s is unavailable", app.Config.Remote.BaseURL)
			}

			run, err := app.Coordinator.ReconcileCatalogs(ctx, entities.SyncTriggerManual)
			if run != nil {
				printRun(cmd, run)
			}
			return err
		},
	}
}

func printRun(cmd *cobra.Command, run *entities.SyncRun) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Reconciliation %s: %d remote, %d local books\n", run.Status, run.RemoteBooks, run.LocalBooks)
	fmt.Fprintf(out, "  added locally:   %d\n", run.AddedLocal)
	fmt.Fprintf(out, "  updated locally: %d\n", run.UpdatedLocal)
	fmt.Fprintf(out, "  pushed:          %d\n", run.Pushed)
	fmt.Fprintf(out, "  fields patched:  %d\n", run.PushedFields)
	fmt.Fprintf(out, "  covers uploaded: %d\n", run.CoverUploads)
	fmt.Fprintf(out, "  files uploaded:  %d\n", run.FileUploads)
	if run.Failed > 0 {
		fmt.Fprintf(out, "  failed:          %d (%s)\n", run.Failed, run.Error)
	}
}
