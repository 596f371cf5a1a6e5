package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Library.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No books in library. Use 'epubshelf import' to add some.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tPROGRESS\tFAVORITE\tFILE\tCOVER")
			for _, b := range list {
				progress := "-"
				if b.Progress != nil {
					progress = fmt.Sprintf("%.2f", *b.Progress)
				}
				favorite := ""
				if b.Favorite != nil && *b.Favorite {
					favorite = "★"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ID, truncateString(b.Title, 40), truncateString(b.Author, 30),
					progress, favorite, yesNo(b.HasFile), yesNo(b.HasCover))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d books\n", len(list))
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
