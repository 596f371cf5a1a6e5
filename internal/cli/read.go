package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/mrlokans/epubshelf/internal/epub"
)

func newReadCommand() *cobra.Command {
	var (
		more int
		html bool
	)

	cmd := &cobra.Command{
		Use:   "read <book-id>",
		Short: "Print chapters of a book from its reading position",
		Long: "Open a book at its stored progress and print the chapter window there. " +
			"Use --more to append following windows.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			app, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := commandContext(cmd)
			session, err := app.Reader.Open(ctx, uint(id))
			if err != nil {
				return err
			}
			defer session.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d chapters, progress %.2f)\n\n", session.Title, session.ChapterCount(), session.ResumeProgress())

			chapters, err := session.Initial(ctx)
			if err != nil {
				return err
			}
			for i := 0; i < more; i++ {
				next, err := session.LoadMore(ctx)
				if err != nil {
					return err
				}
				if len(next) == 0 {
					break
				}
				chapters = append(chapters, next...)
			}

			base, _ := session.Window()
			for i, ch := range chapters {
				fmt.Fprintf(out, "── %d: %s ──\n", base+i+1, ch.Name)
				if html {
					fmt.Fprintln(out, ch.Content)
				} else {
					fmt.Fprintln(out, chapterText(ch))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&more, "more", 0, "Number of additional chapter windows to load")
	cmd.Flags().BoolVar(&html, "html", false, "Print sanitized HTML instead of plain text")
	return cmd
}

// chapterText flattens sanitized chapter HTML into paragraphs of plain text.
func chapterText(ch epub.Chapter) string {
	if ch.Content == epub.PlaceholderNotFound || ch.Content == epub.PlaceholderError {
		return ch.Content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ch.Content))
	if err != nil {
		return ch.Content
	}

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(parts, "\n\n")
}
