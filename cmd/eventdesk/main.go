// Command eventdesk is the editorial desk for the community events site:
// it keeps the location and organizer libraries, links events to them,
// validates incoming events and moves them through review.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// errFindings marks a validate run that completed but found errors. The
// findings are already printed; only the exit code remains.
var errFindings = errors.New("validation found errors")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, clockwork.NewRealClock())
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, clock clockwork.Clock) int {
	a := &app{clock: clock}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err == nil {
		return 0
	}
	printError(stderr, err, a.verbose)
	return 1
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventdesk",
		Short: "Editorial desk for community events",
		Long: `eventdesk maintains the location and organizer libraries, links events
to them, validates scraped events and moves them through review.

Data lives in DATA_DIR (default assets/json); editorial settings are read from
CONFIG_FILE (default config.yaml).`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging and full error chains")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (overrides DATA_DIR)")

	root.AddCommand(
		newEntitiesCmd(a),
		newLocationsCmd(a),
		newOrganizersCmd(a),
		newEventsCmd(a),
		newReviewCmd(a),
		newServeCmd(a),
	)
	return root
}

func printError(w io.Writer, err error, verbose bool) {
	if errors.Is(err, errFindings) {
		fmt.Fprintln(w, "❌ Error: validation failed")
		return
	}
	fmt.Fprintf(w, "❌ Error: %v\n", err)
	if !verbose {
		return
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(w, "   caused by: %v\n", cause)
	}
}
