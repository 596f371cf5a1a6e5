package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "import <file.epub>...",
		Short: "Import EPUB files into the library",
		Long:  "Import EPUB files into the local catalog and push them to the remote catalog when it is reachable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, !offline)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			var failed []error
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
					continue
				}

				result, err := app.Library.Import(commandContext(cmd), data)
				if err != nil {
					failed = append(failed, fmt.Errorf("%s: %w", path, err))
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					continue
				}

				fmt.Fprintf(out, "✓ %s: '%s' by %s (id %d), %s\n",
					path, result.Book.Title, result.Book.Author, result.Book.ID, result.Status.Outcome().Message)
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
			}
			return errors.Join(failed...)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the remote catalog")
	return cmd
}
