// Package loss applies bandwidth shaping policies to decoded event
// streams.
package loss

import (
	"evraw/pkg/dvs"
	"fmt"
)

// BitsPerEvent wire cost of one event used for capacity calculations.
const BitsPerEvent = 32

// Policy a shaping strategy.
type Policy string

// Policies.
const (
	// TailDrop passes the first events of each chunk and discards the
	// remainder.
	TailDrop Policy = "taildrop"

	// UniformThin drops evenly spaced events across each chunk.
	UniformThin Policy = "uniform"
)

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case TailDrop:
		return TailDrop, nil
	case UniformThin:
		return UniformThin, nil
	}
	return "", fmt.Errorf("unknown policy: %q", name)
}

// Config shaping parameters.
type Config struct {
	Policy        Policy
	BandwidthMbps float64
	ChunkMs       float64
}

// Capacity maximum events per chunk.
func (c Config) Capacity() int {
	return int(c.BandwidthMbps * 1000 * c.ChunkMs / BitsPerEvent)
}

func (c Config) chunkMicros() uint64 {
	return uint64(c.ChunkMs * 1000)
}

// Validate checks the shaping parameters.
func (c Config) Validate() error {
	if c.ChunkMs <= 0 {
		return fmt.Errorf("chunk duration must be positive: %v", c.ChunkMs)
	}
	if c.BandwidthMbps < 0 {
		return fmt.Errorf("bandwidth must not be negative: %v", c.BandwidthMbps)
	}
	switch c.Policy {
	case TailDrop, UniformThin:
	default:
		return fmt.Errorf("unknown policy: %q", c.Policy)
	}
	return nil
}

// Apply filters samples with the configured policy. TimeSync markers
// always pass and order is preserved. Chunk windows align to
// multiples of the chunk duration, starting at the first sample's
// timestamp.
func Apply(samples []dvs.Sample, cfg Config) ([]dvs.Sample, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == TailDrop {
		return tailDrop(samples, cfg), nil
	}
	return uniformThin(samples, cfg), nil
}

// tailDrop streams samples, keeping at most capacity events per
// chunk. An event beyond the current window opens a new chunk
// realigned to the boundary containing it.
func tailDrop(samples []dvs.Sample, cfg Config) []dvs.Sample {
	if len(samples) == 0 {
		return nil
	}
	capacity := cfg.Capacity()
	chunk := cfg.chunkMicros()
	zeroTime := samples[0].Timestamp()
	inChunk := 0

	var out []dvs.Sample
	for _, sample := range samples {
		event, ok := sample.(dvs.Event)
		if !ok {
			out = append(out, sample)
			continue
		}

		if event.Time >= zeroTime+chunk {
			zeroTime = event.Time - event.Time%chunk
			inChunk = 0
		}
		if inChunk < capacity {
			inChunk++
			out = append(out, sample)
		}
	}
	return out
}

// uniformThin buffers one chunk at a time and thins it on flush.
// Markers stay at their position inside the chunk but never count
// against the capacity. The trailing partial chunk flushes with the
// same rule.
func uniformThin(samples []dvs.Sample, cfg Config) []dvs.Sample {
	if len(samples) == 0 {
		return nil
	}
	capacity := cfg.Capacity()
	chunk := cfg.chunkMicros()
	zeroTime := samples[0].Timestamp()

	var out []dvs.Sample
	var buffer []dvs.Sample
	cdCount := 0

	for _, sample := range samples {
		event, ok := sample.(dvs.Event)
		if !ok {
			buffer = append(buffer, sample)
			continue
		}

		if event.Time >= zeroTime+chunk {
			out = thinChunk(out, buffer, cdCount, capacity)
			buffer = buffer[:0]
			cdCount = 0
			zeroTime = event.Time - event.Time%chunk
		}
		cdCount++
		buffer = append(buffer, sample)
	}
	return thinChunk(out, buffer, cdCount, capacity)
}

// thinChunk appends chunk to out, dropping the i-th event whenever
// the removals so far lag the target fraction. Exactly
// max(cdCount-capacity, 0) events are removed.
func thinChunk(out, chunk []dvs.Sample, cdCount, capacity int) []dvs.Sample {
	numToRemove := cdCount - capacity
	if numToRemove <= 0 {
		return append(out, chunk...)
	}

	target := float64(numToRemove) / float64(cdCount)
	numRemoved := 0
	i := 0
	for _, sample := range chunk {
		if _, ok := sample.(dvs.Event); !ok {
			out = append(out, sample)
			continue
		}
		i++
		if float64(numRemoved)/float64(i) < target {
			numRemoved++
			continue
		}
		out = append(out, sample)
	}
	return out
}
