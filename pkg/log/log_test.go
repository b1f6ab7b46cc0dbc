package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *Logger {
	logger := NewMockLogger()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger.Start(ctx)

	return logger
}

func TestLoggerFeed(t *testing.T) {
	logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	go logger.Error().Src("decode").File("a.raw").Msg("bad word")

	entry := <-feed
	require.Equal(t, LevelError, entry.Level)
	require.Equal(t, "decode", entry.Src)
	require.Equal(t, "a.raw", entry.File)
	require.Equal(t, "bad word", entry.Msg)
	require.NotZero(t, entry.Time)
}

func TestLoggerMsgf(t *testing.T) {
	logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	go logger.Info().Src("app").Msgf("wrote %v samples", 3)

	entry := <-feed
	require.Equal(t, LevelInfo, entry.Level)
	require.Equal(t, "wrote 3 samples", entry.Msg)
}

func TestLoggerUnsubscribe(t *testing.T) {
	logger := newTestLogger(t)

	feed1, cancel1 := logger.Subscribe()
	defer cancel1()
	feed2, cancel2 := logger.Subscribe()
	cancel2()

	go logger.Warn().Src("app").Msg("test")

	entry := <-feed1
	require.Equal(t, "test", entry.Msg)

	entry, ok := <-feed2
	require.False(t, ok)
	require.Zero(t, entry)
}

func TestFormatLog(t *testing.T) {
	cases := []struct {
		name     string
		input    Log
		expected string
	}{
		{
			"error",
			Log{Level: LevelError, Src: "app", Msg: "failed"},
			"[ERROR] app: failed",
		},
		{
			"warningFile",
			Log{Level: LevelWarning, File: "x.raw", Src: "decode", Msg: "skip"},
			"[WARNING] x.raw: decode: skip",
		},
		{
			"infoBare",
			Log{Level: LevelInfo, Msg: "done"},
			"[INFO] done",
		},
		{
			"debug",
			Log{Level: LevelDebug, Src: "shape", Msg: "chunk flushed"},
			"[DEBUG] shape: chunk flushed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, formatLog(tc.input))
		})
	}
}
