package cli

import (
	"evraw/pkg/history"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit  int
	Format string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List recorded runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum records to print")
	cmd.Flags().StringVar(&opts.Format, "format", "", "only runs with this input format (EVT2|EVT3|DAT)")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	store := history.New(opts.Env.HistoryDB)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	q := history.Query{Limit: opts.Limit}
	if opts.Format != "" {
		q.Formats = []string{strings.ToUpper(opts.Format)}
	}

	records, err := store.Query(q)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	for _, rec := range records {
		printRecord(cmd.OutOrStdout(), rec)
	}
	return nil
}

func printRecord(w io.Writer, rec history.Record) {
	when := time.UnixMicro(rec.Time).Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "%v  %-8v %-4v %v", when, rec.Command, rec.Format, rec.Input)
	if rec.Output != "" {
		fmt.Fprintf(w, " -> %v", rec.Output)
	}
	fmt.Fprintf(w, "  %v/%v events", rec.EventsOut, rec.EventsIn)
	if rec.Policy != "" {
		fmt.Fprintf(w, "  %v @%v Mbps", rec.Policy, rec.BandwidthMbps)
	}
	fmt.Fprintln(w)
}
