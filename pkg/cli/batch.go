package cli

import (
	"errors"
	"evraw/pkg/history"
	"evraw/pkg/loss"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"
)

// ErrDiskSpace not enough free space on the output volume.
var ErrDiskSpace = errors.New("not enough disk space")

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	ShapeFlags
	Input    string
	Output   string
	Shape    bool
	Compress bool
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "batch",
		Short:         "Convert every stream in a directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input directory")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output directory")
	cmd.Flags().BoolVar(&opts.Shape, "shape", false, "shape each stream to the bandwidth budget")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd compress the outputs, appending .zst")
	addShapeFlags(cmd, &opts.ShapeFlags)
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *BatchOptions) error {
	var cfg loss.Config
	if opts.Shape {
		var err error
		cfg, err = opts.ShapeFlags.Config(cmd, opts.Env)
		if err != nil {
			return err
		}
	}

	files, totalSize, err := collectStreams(opts.Input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no stream files in %v", opts.Input)
	}

	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		return fmt.Errorf("make output directory: %w", err)
	}

	usage, err := disk.Usage(opts.Output)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	if usage.Free < uint64(totalSize) {
		return fmt.Errorf("%w: %v bytes free, %v required", ErrDiskSpace, usage.Free, totalSize)
	}

	store := opts.openHistory()
	if store != nil {
		defer store.Close()
	}

	failed := 0
	for _, file := range files {
		if err := batchFile(cmd, opts, store, cfg, file); err != nil {
			opts.Logger.Error().Src("batch").File(file).Msgf("%v", err)
			failed++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %v of %v files\n", len(files)-failed, len(files))
	if failed > 0 {
		return fmt.Errorf("%v of %v files failed", failed, len(files))
	}
	return nil
}

func batchFile(cmd *cobra.Command, opts *BatchOptions, store *history.Store, cfg loss.Config, file string) error {
	start := time.Now()

	header, samples, err := readStream(file)
	if err != nil {
		return err
	}

	shaped := samples
	if opts.Shape {
		shaped, err = loss.Apply(samples, cfg)
		if err != nil {
			return err
		}
	}

	output, err := outputPath(opts.Input, opts.Output, file, opts.Compress)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("make output directory: %w", err)
	}
	if err := writeStream(output, header, shaped); err != nil {
		return err
	}

	eventsIn, markers := countSamples(samples)
	eventsOut, _ := countSamples(shaped)
	fmt.Fprintf(cmd.OutOrStdout(), "%v: %v -> %v events\n", output, eventsIn, eventsOut)

	rec := history.Record{
		Command:    "batch",
		Input:      file,
		Output:     output,
		Format:     header.Format,
		EventsIn:   eventsIn,
		EventsOut:  eventsOut,
		Markers:    markers,
		DurationUs: uint64(time.Since(start).Microseconds()),
	}
	if opts.Shape {
		rec.BandwidthMbps = cfg.BandwidthMbps
		rec.ChunkMs = cfg.ChunkMs
		rec.Policy = string(cfg.Policy)
	}
	opts.saveRecord(store, rec)
	return nil
}

// collectStreams lists the stream files under dir with their total size.
func collectStreams(dir string) ([]string, int64, error) {
	var files []string
	var totalSize int64

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isStreamName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, path)
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %v: %w", dir, err)
	}
	return files, totalSize, nil
}

// isStreamName reports whether name carries a stream extension, with or
// without a zstd layer.
func isStreamName(name string) bool {
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".zst")
	ext := filepath.Ext(name)
	return ext == ".raw" || ext == ".dat"
}

// outputPath mirrors the input file path under the output directory
// with an EVT2 extension.
func outputPath(inputDir, outputDir, file string, compress bool) (string, error) {
	rel, err := filepath.Rel(inputDir, file)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(filepath.Ext(rel), ".zst") {
		rel = rel[:len(rel)-len(".zst")]
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ".raw"
	if compress {
		rel += ".zst"
	}
	return filepath.Join(outputDir, rel), nil
}
