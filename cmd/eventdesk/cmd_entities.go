package main

import (
	"fmt"

	"github.com/couchcryptid/community-events/internal/domain"
	"github.com/couchcryptid/community-events/internal/linker"
	"github.com/spf13/cobra"
)

func newEntitiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Link events to the location and organizer libraries",
	}
	cmd.AddCommand(
		newAddReferencesCmd(a),
		newTrackOverridesCmd(a),
		newValidateReferencesCmd(a),
		newMigrateCmd(a),
	)
	return cmd
}

func newAddReferencesCmd(a *app) *cobra.Command {
	var dryRun, force bool
	cmd := &cobra.Command{
		Use:   "add-references",
		Short: "Add location_id and organizer_id to published and pending events",
		Long: `Derives location_id and organizer_id from the embedded location and
organizer objects. Existing references are kept unless --force is given.
Each modified file is copied to <file>.backup first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.linker()
			if err != nil {
				return err
			}
			stats, err := l.AddReferences(cmd.Context(), dryRun, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stats.DryRun {
				fmt.Fprintln(out, "🔍 Dry run, nothing written")
			}
			for _, f := range stats.Files {
				fmt.Fprintf(out, "%s: %d events, %d location refs, %d organizer refs, %d modified\n",
					f.File, f.Events, f.LocationRefs, f.OrganizerRefs, f.Modified)
				if f.Backup != "" {
					fmt.Fprintf(out, "    backup: %s\n", f.Backup)
				}
			}
			fmt.Fprintf(out, "✅ %d events scanned, %d location and %d organizer references added\n",
				stats.Events, stats.LocationRefs, stats.OrganizerRefs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&force, "force", false, "recompute references that already exist")
	return cmd
}

func newTrackOverridesCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "track-overrides",
		Short: "Classify how events relate to library entities",
		Long: `Counts reference_only, partial_override, full_override and needs_migration
events for locations and organizers and writes entity_override_report.json.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			l, err := a.linker()
			if err != nil {
				return err
			}
			report, err := l.TrackOverrides()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, report)
			}

			fmt.Fprintf(out, "📊 %d events\n\n", report.TotalEvents)
			t := newTable(out)
			fmt.Fprintln(t, "PATTERN\tLOCATIONS\tORGANIZERS")
			for _, p := range domain.Patterns {
				fmt.Fprintf(t, "%s\t%d\t%d\n", p, report.LocationPatterns[p], report.OrganizerPatterns[p])
			}
			if err := t.Flush(); err != nil {
				return err
			}
			detailLine := func(d linker.OverrideDetail) string {
				return fmt.Sprintf("%s %s (%s) %q %v", d.Kind, d.EventID, d.File, d.Title, d.Fields)
			}
			if len(report.PartialOverrides) > 0 {
				fmt.Fprintf(out, "\nPartial overrides (%d):\n", len(report.PartialOverrides))
				examples(out, report.PartialOverrides, detailLine)
			}
			if len(report.NeedsMigration) > 0 {
				fmt.Fprintf(out, "\nNeeds migration (%d):\n", len(report.NeedsMigration))
				examples(out, report.NeedsMigration, detailLine)
			}
			return nil
		},
	}
	addFormatFlag(cmd, &format, "text", "json")
	return cmd
}

func newValidateReferencesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that event references resolve to library records",
		Long: `Reports malformed references as errors and references missing from the
library as warnings. Exits 1 when any error is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.linker()
			if err != nil {
				return err
			}
			report, err := l.ValidateReferences()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			line := func(i linker.ReferenceIssue) string {
				return fmt.Sprintf("%s %s.%s=%s: %s", i.File, i.EventID, i.Field, i.Reference, i.Message)
			}
			fmt.Fprintf(out, "%d references checked, %d errors, %d warnings\n",
				report.Checked, len(report.Errors), len(report.Warnings))
			if len(report.Errors) > 0 {
				fmt.Fprintln(out, "Errors:")
				examples(out, report.Errors, line)
			}
			if len(report.Warnings) > 0 {
				fmt.Fprintln(out, "Warnings:")
				examples(out, report.Warnings, line)
			}
			if !report.OK() {
				return errFindings
			}
			fmt.Fprintln(out, "✅ All references are well formed")
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Build the libraries from the venues and organizers embedded in events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.linker()
			if err != nil {
				return err
			}
			stats, err := l.Migrate(force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %d events scanned: %d locations, %d organizers\n",
				stats.Events, stats.Locations, stats.Organizers)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing libraries")
	return cmd
}
