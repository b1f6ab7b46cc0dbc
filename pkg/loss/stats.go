package loss

import (
	"evraw/pkg/dvs"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary holds chunk bitrate statistics in Mbps.
type Summary struct {
	Chunks int
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// Rates returns the bitrate of each chunk in Mbps. Windows are
// consecutive chunk duration spans starting at the first event, empty
// windows between events count as zero.
func Rates(samples []dvs.Sample, chunkMs float64) []float64 {
	events := dvs.Events(samples)
	if len(events) == 0 || chunkMs <= 0 {
		return nil
	}
	chunk := uint64(chunkMs * 1000)
	if chunk == 0 {
		return nil
	}

	counts := []int{0}
	windowEnd := events[0].Time + chunk
	for _, event := range events {
		for event.Time >= windowEnd {
			counts = append(counts, 0)
			windowEnd += chunk
		}
		counts[len(counts)-1]++
	}

	// Bits per microsecond is numerically Mbits per second.
	rates := make([]float64, len(counts))
	for i, n := range counts {
		rates[i] = float64(n*BitsPerEvent) / float64(chunk)
	}
	return rates
}

// Summarize computes distribution statistics over chunk rates.
func Summarize(rates []float64) Summary {
	if len(rates) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(rates))
	copy(sorted, rates)
	sort.Float64s(sorted)

	return Summary{
		Chunks: len(rates),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}
