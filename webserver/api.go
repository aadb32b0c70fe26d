// Package webserver exposes the fork engine's operational surface:
// a snapshot of live forks, a lightweight stats endpoint, hot config
// read/reload, and the Prometheus scrape endpoint, via a single
// net/http.ServeMux with one handler per path.
package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"ForkGo/fork"
	"ForkGo/global"
	"ForkGo/metrics"
)

// Server bundles the collaborators the API handlers read from.
type Server struct {
	addr    string
	router  *fork.Router
	config  *fork.ConfigStore
	metrics *metrics.Metrics
	srv     *http.Server
}

func New(addr string, router *fork.Router, config *fork.ConfigStore, m *metrics.Metrics) *Server {
	return &Server{addr: addr, router: router, config: config, metrics: m}
}

// Start begins serving the API on its own goroutine, tracked by
// global.WtGrp so the process can wait for it on shutdown.
func (s *Server) Start() {
	mux := http.NewServeMux()
	s.wireHandlers(mux)

	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	global.WtGrp.Add(1)
	go func() {
		defer global.WtGrp.Done()
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			global.LogError(global.LTWebserver, "webserver stopped: "+err.Error())
		}
	}()

	global.LogInfo(global.LTWebserver, fmt.Sprintf("API webserver listening on %s", s.addr))
}

func (s *Server) wireHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/forks", s.serveForks)
	mux.HandleFunc("GET /api/v1/stats", s.serveStats)
	mux.HandleFunc("GET /api/v1/config", s.serveConfig)
	mux.HandleFunc("PATCH /api/v1/config", s.refreshConfig)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /", s.serveHome)
}

func (s *Server) serveHome(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("<h1>fork engine API webserver</h1>\n"))
}

type forkSummary struct {
	ID              string `json:"id"`
	CallID          string `json:"callId"`
	State           string `json:"state"`
	BranchCount     int    `json:"branchCount"`
	LastStatusSent  int    `json:"lastStatusSent"`
}

func (s *Server) serveForks(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	forks := s.router.ActiveForks()
	out := make([]forkSummary, 0, len(forks))
	for _, fc := range forks {
		sum := forkSummary{
			ID:          fc.ID,
			CallID:      fc.IncomingRequest().CallID,
			State:       string(fc.State()),
			BranchCount: len(fc.Branches()),
		}
		if last := fc.LastResponseSent(); last != nil {
			sum.LastStatusSent = last.StatusCode
		}
		out = append(out, sum)
	}

	if err := json.NewEncoder(w).Encode(out); err != nil {
		global.LogError(global.LTWebserver, err.Error())
	}
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	toMB := func(b uint64) uint64 { return b / 1_000_000 }

	data := struct {
		CPUCount        int    `json:"cpuCount"`
		GoRoutinesCount int    `json:"goroutineCount"`
		AllocMB         uint64 `json:"allocMb"`
		SysMB           uint64 `json:"sysMb"`
		GCCycles        uint32 `json:"gcCycles"`
		ActiveForks     int    `json:"activeForks"`
	}{
		CPUCount:        runtime.NumCPU(),
		GoRoutinesCount: runtime.NumGoroutine(),
		AllocMB:         toMB(m.Alloc),
		SysMB:           toMB(m.Sys),
		GCCycles:        m.NumGC,
		ActiveForks:     len(s.router.ActiveForks()),
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		global.LogError(global.LTWebserver, err.Error())
	}
}

func (s *Server) serveConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	data, err := s.config.MarshalJSON()
	if err != nil {
		global.LogError(global.LTWebserver, err.Error())
		http.Error(w, "failed to marshal config", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}

func (s *Server) refreshConfig(w http.ResponseWriter, _ *http.Request) {
	s.config.ReloadConfig()
	_, _ = w.Write([]byte("config reloaded\n"))
}
