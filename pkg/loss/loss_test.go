package loss

import (
	"evraw/pkg/dvs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTailDrop(t *testing.T) {
	cfg := Config{Policy: TailDrop, BandwidthMbps: 0.064, ChunkMs: 1}
	require.Equal(t, 2, cfg.Capacity())

	samples := []dvs.Sample{
		dvs.Event{Time: 0, X: 1},
		dvs.TimeSync{Time: 64},
		dvs.Event{Time: 100, X: 2},
		dvs.Event{Time: 200, X: 3},
		dvs.TimeSync{Time: 1088},
		dvs.Event{Time: 1100, X: 4},
		dvs.Event{Time: 1200, X: 5},
	}

	out, err := Apply(samples, cfg)
	require.NoError(t, err)

	expected := []dvs.Sample{
		dvs.Event{Time: 0, X: 1},
		dvs.TimeSync{Time: 64},
		dvs.Event{Time: 100, X: 2},
		dvs.TimeSync{Time: 1088},
		dvs.Event{Time: 1100, X: 4},
		dvs.Event{Time: 1200, X: 5},
	}
	require.Equal(t, expected, out)
}

func TestTailDropZeroCapacity(t *testing.T) {
	cfg := Config{Policy: TailDrop, BandwidthMbps: 0, ChunkMs: 1}
	require.Equal(t, 0, cfg.Capacity())

	samples := []dvs.Sample{
		dvs.Event{Time: 0},
		dvs.TimeSync{Time: 64},
		dvs.Event{Time: 1100},
	}

	out, err := Apply(samples, cfg)
	require.NoError(t, err)
	require.Equal(t, []dvs.Sample{dvs.TimeSync{Time: 64}}, out)
}

func TestUniformThinExactCount(t *testing.T) {
	cfg := Config{Policy: UniformThin, BandwidthMbps: 0.064, ChunkMs: 1}
	require.Equal(t, 2, cfg.Capacity())

	samples := []dvs.Sample{
		dvs.Event{Time: 0, X: 0},
		dvs.Event{Time: 10, X: 1},
		dvs.Event{Time: 20, X: 2},
		dvs.Event{Time: 30, X: 3},
	}

	out, err := Apply(samples, cfg)
	require.NoError(t, err)

	expected := []dvs.Sample{
		dvs.Event{Time: 10, X: 1},
		dvs.Event{Time: 30, X: 3},
	}
	require.Equal(t, expected, out)
}

func TestUniformThinSpread(t *testing.T) {
	cfg := Config{Policy: UniformThin, BandwidthMbps: 1.6, ChunkMs: 1}
	require.Equal(t, 50, cfg.Capacity())

	samples := []dvs.Sample{dvs.TimeSync{Time: 0}}
	for i := 0; i < 100; i++ {
		samples = append(samples, dvs.Event{Time: uint64(i), X: uint16(i)})
	}

	out, err := Apply(samples, cfg)
	require.NoError(t, err)

	require.Equal(t, dvs.TimeSync{Time: 0}, out[0])
	events := dvs.Events(out)
	require.Len(t, events, 50)

	kept := map[uint16]bool{}
	for _, event := range events {
		kept[event.X] = true
	}

	lastDrop := -1
	maxGap := 0
	for i := 0; i < 100; i++ {
		if kept[uint16(i)] {
			continue
		}
		if lastDrop >= 0 && i-lastDrop > maxGap {
			maxGap = i - lastDrop
		}
		lastDrop = i
	}
	require.LessOrEqual(t, maxGap, 3)
}

func TestUniformThinMultipleChunks(t *testing.T) {
	cfg := Config{Policy: UniformThin, BandwidthMbps: 0.064, ChunkMs: 1}

	samples := []dvs.Sample{
		dvs.Event{Time: 0, X: 0},
		dvs.Event{Time: 1, X: 1},
		dvs.Event{Time: 2, X: 2},
		dvs.Event{Time: 3, X: 3},
		dvs.Event{Time: 4, X: 4},
		dvs.TimeSync{Time: 1200},
		dvs.Event{Time: 1500, X: 5},
	}

	out, err := Apply(samples, cfg)
	require.NoError(t, err)

	expected := []dvs.Sample{
		dvs.Event{Time: 2, X: 2},
		dvs.Event{Time: 4, X: 4},
		dvs.TimeSync{Time: 1200},
		dvs.Event{Time: 1500, X: 5},
	}
	require.Equal(t, expected, out)
}

func TestApplyEmpty(t *testing.T) {
	cfg := Config{Policy: TailDrop, BandwidthMbps: 25, ChunkMs: 50}
	out, err := Apply(nil, cfg)
	require.NoError(t, err)
	require.Empty(t, out)

	cfg.Policy = UniformThin
	out, err = Apply(nil, cfg)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zeroChunk", Config{Policy: TailDrop, BandwidthMbps: 25}},
		{"negativeBandwidth", Config{Policy: TailDrop, BandwidthMbps: -1, ChunkMs: 50}},
		{"unknownPolicy", Config{Policy: "drop", BandwidthMbps: 25, ChunkMs: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(nil, tc.cfg)
			require.Error(t, err)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("taildrop")
	require.NoError(t, err)
	require.Equal(t, TailDrop, policy)

	policy, err = ParsePolicy("uniform")
	require.NoError(t, err)
	require.Equal(t, UniformThin, policy)

	_, err = ParsePolicy("nope")
	require.Error(t, err)
}
