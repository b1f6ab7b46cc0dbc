package cli

import (
	"bufio"
	"evraw/pkg/dvs"
	"evraw/pkg/loss"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// readStream decodes every sample in the file.
func readStream(path string) (*dvs.Header, []dvs.Sample, error) {
	decoder, header, err := dvs.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}

	samples, err := dvs.ReadAll(decoder)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %v: %w", path, err)
	}
	return header, samples, nil
}

// writeStream encodes samples to an EVT2 file, compressing when the
// name carries a ".zst" extension.
func writeStream(path string, header *dvs.Header, samples []dvs.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %v: %w", path, err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)

	var w io.Writer = buf
	var zw *zstd.Encoder
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		zw, err = zstd.NewWriter(buf)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		w = zw
	}

	encoder := dvs.NewEVT2Encoder(w)
	if err := encoder.WriteHeader(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, sample := range samples {
		if err := encoder.WriteEvent(sample); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}

	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("close zstd writer: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush %v: %w", path, err)
	}
	return nil
}

// ensureZst appends a ".zst" extension when absent.
func ensureZst(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		return path
	}
	return path + ".zst"
}

func countSamples(samples []dvs.Sample) (events, markers int) {
	for _, sample := range samples {
		switch sample.(type) {
		case dvs.Event:
			events++
		case dvs.TimeSync:
			markers++
		}
	}
	return events, markers
}

// streamBounds returns the first and last event timestamp.
func streamBounds(samples []dvs.Sample) (first, last uint64) {
	events := dvs.Events(samples)
	if len(events) == 0 {
		return 0, 0
	}
	return events[0].Time, events[len(events)-1].Time
}

func printRateSummary(w io.Writer, label string, samples []dvs.Sample, chunkMs float64) {
	summary := loss.Summarize(loss.Rates(samples, chunkMs))
	fmt.Fprintf(w, "%v: mean %.2f median %.2f p95 %.2f max %.2f Mbps over %v chunks of %vms\n",
		label, summary.Mean, summary.Median, summary.P95, summary.Max, summary.Chunks, chunkMs)
}

// printShapeSummary writes before and after figures for a shaping run.
func printShapeSummary(w io.Writer, cfg loss.Config, in, out []dvs.Sample) {
	eventsIn, _ := countSamples(in)
	eventsOut, _ := countSamples(out)

	kept := 100.0
	if eventsIn > 0 {
		kept = float64(eventsOut) / float64(eventsIn) * 100
	}

	fmt.Fprintf(w, "policy %v, bandwidth %v Mbps, chunk %vms\n",
		cfg.Policy, cfg.BandwidthMbps, cfg.ChunkMs)
	fmt.Fprintf(w, "events %v -> %v (%.1f%% kept)\n", eventsIn, eventsOut, kept)

	if eventsIn > 0 {
		first, last := streamBounds(in)
		fmt.Fprintf(w, "span %vus to %vus (%.3fs)\n",
			first, last, float64(last-first)/1e6)
		fmt.Fprintf(w, "size %.3f -> %.3f Mbit\n",
			float64(eventsIn*loss.BitsPerEvent)/1e6,
			float64(eventsOut*loss.BitsPerEvent)/1e6)
		if last > first {
			// Bits per microsecond is numerically Mbits per second.
			fmt.Fprintf(w, "average %.2f -> %.2f Mbps\n",
				float64(eventsIn*loss.BitsPerEvent)/float64(last-first),
				float64(eventsOut*loss.BitsPerEvent)/float64(last-first))
		}
	}

	printRateSummary(w, "input", in, cfg.ChunkMs)
	printRateSummary(w, "output", out, cfg.ChunkMs)
}
