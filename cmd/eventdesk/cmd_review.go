package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/community-events/internal/review"
	"github.com/spf13/cobra"
)

func newReviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect pending events before approving them",
	}
	cmd.AddCommand(newReviewShowCmd(a), newReviewNoteCmd(a))
	return cmd
}

func newReviewShowCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show validation, history and venue intel for a pending event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			contexts, err := a.reviewContexts()
			if err != nil {
				return err
			}
			c, err := contexts.PendingContext(args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				return printJSON(cmd.OutOrStdout(), c)
			}
			printContext(cmd.OutOrStdout(), c)
			return nil
		},
	}
	addFormatFlag(cmd, &format, "text", "json")
	return cmd
}

func printContext(out io.Writer, c review.EventContext) {
	e := c.Event
	fmt.Fprintf(out, "📝 %s\n    id: %s  source: %s  start: %s\n", e.Title, e.ID, e.Source, e.StartTime)
	if name := e.LocationName(); name != "" {
		fmt.Fprintf(out, "    location: %s (%s)\n", name, e.LocationID)
	}
	if name := e.OrganizerName(); name != "" {
		fmt.Fprintf(out, "    organizer: %s (%s)\n", name, e.OrganizerID)
	}

	if c.Validation.IsValid {
		fmt.Fprintln(out, "\n✅ Valid")
	} else {
		fmt.Fprintln(out, "\n❌ Blocking errors:")
	}
	for _, i := range c.Validation.Errors {
		fmt.Fprintf(out, "    %s\n", i)
	}
	for _, i := range c.Validation.Warnings {
		fmt.Fprintf(out, "    ⚠️  %s\n", i)
	}

	if len(c.Flags) > 0 {
		fmt.Fprintln(out, "\n🚩 Needs attention:")
		for _, f := range c.Flags {
			fmt.Fprintf(out, "    [%s] %s\n", f.Kind, f.Message)
		}
	}
	if len(c.PriorRejections) > 0 {
		fmt.Fprintln(out, "\nPreviously rejected:")
		examples(out, c.PriorRejections, func(r review.Rejection) string {
			return fmt.Sprintf("%s %q (%s, %.0f%%) %s", r.EventID, r.Title, r.MatchedBy, r.Similarity*100, r.Reason)
		})
	}
	if len(c.SimilarEvents) > 0 {
		fmt.Fprintln(out, "\nSimilar events:")
		examples(out, c.SimilarEvents, func(s review.SimilarEvent) string {
			return fmt.Sprintf("%s %s %q at %s [%s, %s]", s.StartTime, s.EventID, s.Title, s.Location, s.Status, s.MatchType)
		})
	}
	if u := c.UnverifiedLocation; u != nil {
		fmt.Fprintf(out, "\n📍 Unverified library location %s (%s match): used %d times, %d pending\n",
			u.ID, strings.ReplaceAll(u.Match, "_", " "), u.UsageCount, u.PendingOccurrences)
	}
	if len(c.Suggestions) > 0 {
		fmt.Fprintln(out, "\nVerified locations with a similar name:")
		examples(out, c.Suggestions, func(s review.Suggestion) string {
			return fmt.Sprintf("%s %s %s", s.ID, s.Name, s.Address)
		})
	}
	if len(c.Notes) > 0 {
		fmt.Fprintln(out, "\n💬 Notes:")
		for _, n := range c.Notes {
			fmt.Fprintf(out, "    %s %s: %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Author, n.Text)
		}
	}
}

func newReviewNoteCmd(a *app) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "note ID TEXT...",
		Short: "Leave a note on an event for other editors",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := review.OpenNotes(a.files)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("author") {
				author = os.Getenv("USER")
			}
			if _, err := notes.Add(args[0], strings.Join(args[1:], " "), author); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "💬 Note added to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "note author (default: $USER)")
	return cmd
}
