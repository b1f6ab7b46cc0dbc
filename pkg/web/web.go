// Package web serves a decoded event stream for live inspection.
package web

import (
	"context"
	"encoding/json"
	"evraw/pkg/dvs"
	"evraw/pkg/log"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const jsonContentType = "application/json"

const defaultBatchSize = 512

// Server serves one decoded stream over HTTP.
type Server struct {
	addr    string
	file    string
	header  *dvs.Header
	samples []dvs.Sample
	logger  *log.Logger

	cpu      cpuFunc
	ram      ramFunc
	duration time.Duration
}

type cpuFunc func(context.Context, time.Duration, bool) ([]float64, error)
type ramFunc func() (*mem.VirtualMemoryStat, error)

// NewServer decodes the file wholesale and returns its server.
func NewServer(addr, file string, logger *log.Logger) (*Server, error) {
	decoder, header, err := dvs.OpenFile(file)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", file, err)
	}

	samples, err := dvs.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", file, err)
	}

	return &Server{
		addr:    addr,
		file:    file,
		header:  header,
		samples: samples,
		logger:  logger,

		cpu:      cpu.PercentWithContext,
		ram:      mem.VirtualMemory,
		duration: 1 * time.Second,
	}, nil
}

// Mux returns the route handlers.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/api/feed", s.Feed())
	mux.Handle("/api/header", s.Header())
	mux.Handle("/api/status", s.Status())

	return mux
}

// ListenAndServe serves the routes on the configured address until ctx
// is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{Addr: s.addr, Handler: s.Mux()}

	s.logger.Info().Src("serve").File(s.file).
		Msgf("serving %v samples on %v", len(s.samples), s.addr)

	fatal := make(chan error, 1)
	go func() { fatal <- server.ListenAndServe() }()

	select {
	case err := <-fatal:
		return err
	case <-ctx.Done():
	}

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx2)
}

type feedEvent struct {
	Time     uint64 `json:"time"`
	X        uint16 `json:"x"`
	Y        uint16 `json:"y"`
	Polarity uint8  `json:"polarity"`
}

type feedBatch struct {
	Events  []feedEvent `json:"events"`
	Markers int         `json:"markers"`
}

// Feed opens a websocket and streams the decoded samples in JSON
// batches. Query parameters: "batch" sets events per message,
// "polarity" keeps only one polarity.
func (s *Server) Feed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		batchSize := defaultBatchSize
		if batchStr := query.Get("batch"); batchStr != "" {
			batchInt, err := strconv.Atoi(batchStr)
			if err != nil || batchInt <= 0 {
				http.Error(w,
					fmt.Sprintf("invalid batch size: %v", batchStr),
					http.StatusBadRequest)
				return
			}
			batchSize = batchInt
		}

		polarity := -1
		if polarityStr := query.Get("polarity"); polarityStr != "" {
			switch polarityStr {
			case "0":
				polarity = 0
			case "1":
				polarity = 1
			default:
				http.Error(w,
					fmt.Sprintf("invalid polarity: %v", polarityStr),
					http.StatusBadRequest)
				return
			}
		}

		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer c.Close()

		batch := feedBatch{Events: []feedEvent{}}
		flush := func() error {
			err := c.WriteJSON(batch)
			batch = feedBatch{Events: []feedEvent{}}
			return err
		}

		for _, sample := range s.samples {
			if r.Context().Err() != nil {
				return
			}

			switch v := sample.(type) {
			case dvs.TimeSync:
				batch.Markers++
			case dvs.Event:
				if polarity >= 0 && int(v.Polarity) != polarity {
					continue
				}
				batch.Events = append(batch.Events, feedEvent{
					Time:     v.Time,
					X:        v.X,
					Y:        v.Y,
					Polarity: v.Polarity,
				})
			}

			if len(batch.Events) == batchSize {
				if err := flush(); err != nil {
					return
				}
			}
		}

		if len(batch.Events) > 0 || batch.Markers > 0 {
			if err := flush(); err != nil {
				return
			}
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.WriteMessage(websocket.CloseMessage, closeMsg) //nolint:errcheck
	})
}

type headerInfo struct {
	Format   string   `json:"format"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	EvtMajor int      `json:"evtMajor"`
	EvtMinor int      `json:"evtMinor"`
	Lines    []string `json:"lines"`
}

// Header returns the parsed stream header.
func (s *Server) Header() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		info := headerInfo{
			Format:   s.header.Format,
			Width:    s.header.Width,
			Height:   s.header.Height,
			EvtMajor: s.header.EvtMajor,
			EvtMinor: s.header.EvtMinor,
			Lines:    s.header.Lines,
		}

		w.Header().Set("Content-Type", jsonContentType)
		if err := json.NewEncoder(w).Encode(info); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

type status struct {
	CPUUsage int `json:"cpuUsage"`
	RAMUsage int `json:"ramUsage"`
}

// Status returns cpu and ram usage.
func (s *Server) Status() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		cpuUsage, err := s.cpu(r.Context(), s.duration, false)
		if err != nil {
			http.Error(w,
				fmt.Sprintf("could not get cpu usage: %v", err),
				http.StatusInternalServerError)
			return
		}
		ramUsage, err := s.ram()
		if err != nil {
			http.Error(w,
				fmt.Sprintf("could not get ram usage: %v", err),
				http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", jsonContentType)
		err = json.NewEncoder(w).Encode(status{
			CPUUsage: int(cpuUsage[0]),
			RAMUsage: int(ramUsage.UsedPercent),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
