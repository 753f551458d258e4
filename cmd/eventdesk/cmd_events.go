package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/validation"
	"github.com/spf13/cobra"
)

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event"},
		Short:   "Import, validate and publish events",
	}
	cmd.AddCommand(
		newImportCmd(a),
		newEventsValidateCmd(a),
		newApproveCmd(a),
		newRejectCmd(a),
		newPublishAllCmd(a),
		newArchiveCmd(a),
	)
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Queue scraped events for review",
		Long: `Reads scraper output (a JSON array, or an object with an "events" list)
and appends new events to pending_events.json. Events already published or
pending with the same title and start time are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []domain.Event
			for _, path := range args {
				events, err := jsonfile.ReadScrape(path)
				if err != nil {
					return err
				}
				a.logger.Debug("scrape read", "path", path, "events", len(events))
				raw = append(raw, events...)
			}
			wf, err := a.workflow()
			if err != nil {
				return err
			}
			stats, err := wf.Import(cmd.Context(), raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ %d received: %d queued, %d duplicates skipped\n", stats.Received, stats.Added, stats.Duplicates)
			if stats.Invalid > 0 {
				fmt.Fprintf(out, "⚠️  %d queued events have validation errors and cannot be approved yet\n", stats.Invalid)
			}
			if n := len(stats.NewLocations); n > 0 {
				fmt.Fprintf(out, "📍 %d new unverified locations: %s\n", n, strings.Join(stats.NewLocations, ", "))
			}
			if n := len(stats.NewOrganizers); n > 0 {
				fmt.Fprintf(out, "👥 %d new unverified organizers: %s\n", n, strings.Join(stats.NewOrganizers, ", "))
			}
			return nil
		},
	}
}

var eventLists = map[string]jsonfile.EventList{
	"published": jsonfile.Published,
	"pending":   jsonfile.Pending,
	"rejected":  jsonfile.Rejected,
}

func newEventsValidateCmd(a *app) *cobra.Command {
	var lists []string
	var format string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate event files",
		Long:  `Validates every event in the chosen files. Exits 1 when any event has a blocking error.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			v := a.validator()
			results := make(map[string]validation.BatchResult, len(lists))
			failed := false
			for _, name := range lists {
				list, ok := eventLists[name]
				if !ok {
					return fmt.Errorf("unknown event file %q (want published, pending or rejected)", name)
				}
				events, err := a.files.LoadEvents(list)
				if err != nil {
					return err
				}
				r := v.ValidateBatch(events)
				results[name] = r
				failed = failed || len(r.InvalidIDs) > 0
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := printJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, name := range lists {
					printBatch(cmd, name, results[name])
				}
			}
			if failed {
				return errFindings
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&lists, "file", []string{"published", "pending"}, "event files to check: published, pending, rejected")
	addFormatFlag(cmd, &format, "text", "json")
	return cmd
}

func printBatch(cmd *cobra.Command, name string, r validation.BatchResult) {
	out := cmd.OutOrStdout()
	warnings := 0
	for _, res := range r.Results {
		warnings += len(res.Warnings)
	}
	icon := "✅"
	if len(r.InvalidIDs) > 0 {
		icon = "❌"
	}
	fmt.Fprintf(out, "%s %s: %d valid, %d invalid, %d warnings\n", icon, name, len(r.ValidIDs), len(r.InvalidIDs), warnings)
	invalid := slices.Sorted(slices.Values(r.InvalidIDs))
	examples(out, invalid, func(id string) string {
		parts := make([]string, 0, len(r.Results[id].Errors))
		for _, e := range r.Results[id].Errors {
			parts = append(parts, e.String())
		}
		return id + ": " + strings.Join(parts, "; ")
	})
}

func newApproveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "approve ID...",
		Short: "Publish pending events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.workflow()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs []error
			for _, id := range args {
				e, err := wf.Approve(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(out, "⛔ %s: %v\n", id, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "✅ Published %s (%s)\n", e.ID, e.Title)
			}
			return errors.Join(errs...)
		},
	}
}

func newRejectCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject ID...",
		Short: "Reject pending events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := a.workflow()
			if err != nil {
				return err
			}
			for _, id := range args {
				e, err := wf.Reject(id, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🚫 Rejected %s (%s)\n", e.ID, e.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the events were rejected")
	return cmd
}

func newPublishAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-all",
		Short: "Publish every pending event without validation errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := a.workflow()
			if err != nil {
				return err
			}
			stats, err := wf.PublishAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ %d published, %d held back\n", len(stats.Published), len(stats.Blocked))
			blocked := make([]string, 0, len(stats.Blocked))
			for id := range stats.Blocked {
				blocked = append(blocked, id)
			}
			slices.Sort(blocked)
			examples(out, blocked, func(id string) string {
				errs := stats.Blocked[id].Errors
				if len(errs) == 0 {
					return id
				}
				return id + ": " + errs[0].String()
			})
			return nil
		},
	}
}

func newArchiveCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move past events into monthly archive files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("retention-days") {
				days = a.cfg.Settings.Archive.RetentionDays
			}
			if days < 0 {
				return errors.New("--retention-days must not be negative")
			}
			wf, err := a.workflow()
			if err != nil {
				return err
			}
			stats, err := wf.Archive(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🗄️  %d archived, %d still active\n", stats.Archived, stats.Kept)
			months := make([]string, 0, len(stats.Buckets))
			for m := range stats.Buckets {
				months = append(months, m)
			}
			slices.Sort(months)
			for _, m := range months {
				fmt.Fprintf(out, "    %s: %d added\n", m, stats.Buckets[m])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "retention-days", 0, "keep events this many days after they end (default: archive.retention_days)")
	return cmd
}
