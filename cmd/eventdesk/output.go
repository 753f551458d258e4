package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/couchcryptid/community-events/internal/adapter/jsonfile"
	"github.com/spf13/cobra"
)

// maxExamples caps the detail rows printed by summaries.
const maxExamples = 10

func printJSON(w io.Writer, v any) error {
	data, err := jsonfile.Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// addFormatFlag registers --format with the allowed values, first one default.
func addFormatFlag(cmd *cobra.Command, target *string, allowed ...string) {
	cmd.Flags().StringVar(target, "format", allowed[0], fmt.Sprintf("output format %v", allowed))
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (want one of %v)", format, allowed)
}

// examples prints up to maxExamples lines and a trailer for the rest.
func examples[T any](w io.Writer, items []T, line func(T) string) {
	for i, it := range items {
		if i == maxExamples {
			fmt.Fprintf(w, "    ... and %d more\n", len(items)-maxExamples)
			return
		}
		fmt.Fprintf(w, "    %s\n", line(it))
	}
}
