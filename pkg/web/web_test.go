package web

import (
	"context"
	"encoding/json"
	"evraw/pkg/log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"
)

var testRaw = []byte(
	"% evt 2.0\n" +
		"% format EVT2;width=1280;height=720;\n" +
		"% geometry 1280x720\n" +
		"% end\n" +
		// TimeHigh payload=0.
		"\x00\x00\x00\x80" +
		// CD ON x=5 y=10 low=3.
		"\x0a\x28\xc0\x10" +
		// CD OFF x=1 y=2 low=4.
		"\x02\x08\x00\x01" +
		// TimeHigh payload=2.
		"\x02\x00\x00\x80" +
		// CD ON x=7 y=7 low=1.
		"\x07\x38\x40\x10")

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	file := filepath.Join(t.TempDir(), "stream.raw")
	require.NoError(t, os.WriteFile(file, testRaw, 0o600))

	server, err := NewServer(":0", file, log.NewMockLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(server.Mux())
	t.Cleanup(ts.Close)

	return server, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestFeed(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/feed?batch=2"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var b feedBatch
	require.NoError(t, conn.ReadJSON(&b))
	require.Equal(t, feedBatch{
		Events: []feedEvent{
			{Time: 3, X: 5, Y: 10, Polarity: 1},
			{Time: 4, X: 1, Y: 2, Polarity: 0},
		},
	}, b)

	require.NoError(t, conn.ReadJSON(&b))
	require.Equal(t, feedBatch{
		Events:  []feedEvent{{Time: 129, X: 7, Y: 7, Polarity: 1}},
		Markers: 1,
	}, b)

	err = conn.ReadJSON(&b)
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestFeedPolarityFilter(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/feed?polarity=1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var b feedBatch
	require.NoError(t, conn.ReadJSON(&b))
	require.Equal(t, feedBatch{
		Events: []feedEvent{
			{Time: 3, X: 5, Y: 10, Polarity: 1},
			{Time: 129, X: 7, Y: 7, Polarity: 1},
		},
		Markers: 1,
	}, b)
}

func TestFeedBadQuery(t *testing.T) {
	cases := []struct {
		name string
		path string
	}{
		{"badBatch", "/api/feed?batch=x"},
		{"zeroBatch", "/api/feed?batch=0"},
		{"badPolarity", "/api/feed?polarity=5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t)

			resp, err := http.Get(ts.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHeader(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/header")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info headerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	require.Equal(t, headerInfo{
		Format:   "EVT2",
		Width:    1280,
		Height:   720,
		EvtMajor: 2,
		EvtMinor: 0,
		Lines: []string{
			"% evt 2.0",
			"% format EVT2;width=1280;height=720;",
			"% geometry 1280x720",
			"% end",
		},
	}, info)
}

func TestStatus(t *testing.T) {
	server, ts := newTestServer(t)

	server.cpu = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{42.5}, nil
	}
	server.ram = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{UsedPercent: 77.2}, nil
	}

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, status{CPUUsage: 42, RAMUsage: 77}, st)
}

func TestInvalidMethod(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/api/feed", "/api/header", "/api/status"} {
		resp, err := http.Post(ts.URL+path, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestNewServerBadFile(t *testing.T) {
	_, err := NewServer(":0", "/nonexistent.raw", log.NewMockLogger())
	require.Error(t, err)
}
