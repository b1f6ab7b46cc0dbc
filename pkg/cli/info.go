package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "info FILE",
		Short:         "Print stream details",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, opts, args[0])
		},
	}

	return cmd
}

func runInfo(cmd *cobra.Command, opts *InfoOptions, path string) error {
	header, samples, err := readStream(path)
	if err != nil {
		return err
	}

	events, markers := countSamples(samples)
	first, last := streamBounds(samples)
	span := float64(last-first) / 1e6

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "format   %v", header.Format)
	if header.EvtMajor != 0 || header.EvtMinor != 0 {
		fmt.Fprintf(out, " %v.%v", header.EvtMajor, header.EvtMinor)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "geometry %vx%v\n", header.Width, header.Height)
	fmt.Fprintf(out, "header   %v lines\n", len(header.Lines))
	fmt.Fprintf(out, "events   %v\n", events)
	fmt.Fprintf(out, "markers  %v\n", markers)
	if events == 0 {
		return nil
	}

	fmt.Fprintf(out, "first    %vus\n", first)
	fmt.Fprintf(out, "last     %vus\n", last)
	fmt.Fprintf(out, "span     %.3fs\n", span)
	if span > 0 {
		fmt.Fprintf(out, "rate     %.0f events/s\n", float64(events)/span)
	}
	printRateSummary(out, "bitrate", samples, opts.Env.DefaultChunkMs)
	return nil
}
