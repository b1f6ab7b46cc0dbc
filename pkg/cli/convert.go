package cli

import (
	"evraw/pkg/history"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	File     string
	Output   string
	Compress bool
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "convert",
		Short:         "Decode a stream and re-encode it as EVT2",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input stream")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd compress the output, appending .zst when absent")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runConvert(cmd *cobra.Command, opts *ConvertOptions) error {
	start := time.Now()

	output := opts.Output
	if opts.Compress {
		output = ensureZst(output)
	}

	header, samples, err := readStream(opts.File)
	if err != nil {
		return err
	}

	if err := writeStream(output, header, samples); err != nil {
		return err
	}

	events, markers := countSamples(samples)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%v: %v %vx%v, %v events, %v markers\n",
		opts.File, header.Format, header.Width, header.Height, events, markers)
	fmt.Fprintf(out, "wrote %v in %v\n", output, time.Since(start).Round(time.Millisecond))

	store := opts.openHistory()
	if store != nil {
		defer store.Close()
	}
	opts.saveRecord(store, history.Record{
		Command:    "convert",
		Input:      opts.File,
		Output:     output,
		Format:     header.Format,
		EventsIn:   events,
		EventsOut:  events,
		Markers:    markers,
		DurationUs: uint64(time.Since(start).Microseconds()),
	})
	return nil
}
