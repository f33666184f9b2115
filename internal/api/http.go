package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pv/sortmachine-go/internal/storage"
)

var errTooManyRequests = errors.New("too many requests")

// Server реализует HTTP API управления проигрывателем.
type Server struct {
	manager  *Manager
	mux      *http.ServeMux
	streamer *EventStreamer
	limiter  *RateLimiter
}

// NewServer создаёт HTTP сервер с зарегистрированными хендлерами.
// limiter может быть nil.
func NewServer(manager *Manager, streamer *EventStreamer, limiter *RateLimiter) *Server {
	s := &Server{
		manager:  manager,
		mux:      http.NewServeMux(),
		streamer: streamer,
		limiter:  limiter,
	}
	s.routes()
	return s
}

// Handler возвращает корневой обработчик.
func (s *Server) Handler() http.Handler { return s.mux }

// Listen запускает сервер и блокируется до остановки.
func (s *Server) Listen(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	apiRoutes := []struct {
		path    string
		handler http.Handler
	}{
		{"/api/v1/algorithms", http.HandlerFunc(s.handleAlgorithms)},
		{"/api/v1/job", http.HandlerFunc(s.handleJob)},
		{"/api/v1/job/pause", http.HandlerFunc(s.wrapSimple("pause", s.manager.Pause))},
		{"/api/v1/job/resume", http.HandlerFunc(s.wrapSimple("resume", s.manager.Resume))},
		{"/api/v1/job/stop", http.HandlerFunc(s.wrapSimple("stop", s.manager.Stop))},
		{"/api/v1/job/step/forward", http.HandlerFunc(s.wrapSimple("step_forward", s.manager.StepForward))},
		{"/api/v1/job/speed", http.HandlerFunc(s.handleSpeed)},
		{"/api/v1/runs", http.HandlerFunc(s.handleRuns)},
		{"/api/v1/runs/", http.HandlerFunc(s.handleRun)},
	}
	for _, route := range apiRoutes {
		s.mux.Handle(route.path, s.withCORS(s.limiter.middleware(route.handler)))
	}
	// поток событий долгоживущий, лимит к нему не применяется
	s.mux.Handle("/api/v1/ws/events", s.withCORS(http.HandlerFunc(s.handleWSEvents)))
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"algorithms": s.manager.Algorithms(),
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req startRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params, err := req.params()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("[http] job start count=%d algorithms=%q speed=%g", params.DataCount, params.Algorithms, params.Speed)
		if err := s.manager.Start(r.Context(), params); err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, errJobActive) {
				code = http.StatusConflict
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.manager.Status())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req speedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log.Printf("[http] command speed=%g", req.Speed)
	if err := s.manager.SetSpeed(req.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "speed": req.Speed})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	runs, err := s.manager.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, journalErrorCode(err), err)
		return
	}
	if runs == nil {
		runs = []storage.RunInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRun обслуживает /api/v1/runs/{id}/snapshot и /api/v1/runs/{id}/verify.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	switch action {
	case "snapshot":
		step := 0
		if raw := r.URL.Query().Get("step"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid step %q", raw))
				return
			}
			step = n
		}
		start := time.Now()
		snap, err := s.manager.Snapshot(r.Context(), id, step)
		if err != nil {
			writeError(w, journalErrorCode(err), err)
			return
		}
		logDebugf("[http] snapshot run=%s step=%d in %s", id, step, time.Since(start))
		writeJSON(w, http.StatusOK, snap)
	case "verify":
		v, err := s.manager.Verify(r.Context(), id)
		if err != nil {
			writeError(w, journalErrorCode(err), err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	default:
		http.NotFound(w, r)
	}
}

func journalErrorCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errNoJournal):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	if s.streamer == nil {
		http.Error(w, "websocket streamer not configured", http.StatusServiceUnavailable)
		return
	}
	s.streamer.ServeWS(w, r)
}

func (s *Server) wrapSimple(label string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		log.Printf("[http] command %s", label)
		if err := fn(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type startRequest struct {
	DataCount    int     `json:"data_count,omitempty"`
	Step         string  `json:"step,omitempty"`
	Intermission string  `json:"intermission,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	Algorithms   string  `json:"algorithms,omitempty"`
	Runs         *int    `json:"runs,omitempty"`
	Seed         *uint64 `json:"seed,omitempty"`
}

func (r startRequest) params() (JobParams, error) {
	if r.DataCount < 0 {
		return JobParams{}, fmt.Errorf("invalid data_count: %d", r.DataCount)
	}
	if r.Speed < 0 {
		return JobParams{}, fmt.Errorf("invalid speed: %g", r.Speed)
	}
	if r.Runs != nil && *r.Runs < 0 {
		return JobParams{}, fmt.Errorf("invalid runs: %d", *r.Runs)
	}
	p := JobParams{
		DataCount:  r.DataCount,
		Speed:      r.Speed,
		Algorithms: r.Algorithms,
		Runs:       r.Runs,
		Seed:       r.Seed,
	}
	var err error
	if r.Step != "" {
		if p.Step, err = time.ParseDuration(r.Step); err != nil || p.Step <= 0 {
			return JobParams{}, fmt.Errorf("invalid step: %q", r.Step)
		}
	}
	if r.Intermission != "" {
		if p.Intermission, err = time.ParseDuration(r.Intermission); err != nil || p.Intermission <= 0 {
			return JobParams{}, fmt.Errorf("invalid intermission: %q", r.Intermission)
		}
	}
	return p, nil
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
