// Package relay exposes the Slack pipeline over HTTP so services that do
// not embed the library can still post records.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"slacklog/internal/history"
	"slacklog/internal/metrics"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

type Options struct {
	Pipeline func() *slacklog.Pipeline
	History  history.Store    // optional
	Metrics  *metrics.Metrics // optional
	Log      logx.Logger

	MaxBodyBytes int64
	// Timeout bounds delivery of one request's records.
	Timeout time.Duration

	// RatePerSec limits POST /v1/logs across all clients; 0 means no limit.
	RatePerSec float64
	Burst      int

	// Pprof mounts the profiler under /debug for loopback clients.
	Pprof bool
}

type Server struct {
	opt     Options
	log     logx.Logger
	limiter *rate.Limiter // nil when unlimited
	started time.Time
}

func New(opt Options) *Server {
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = 1 << 20
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	s := &Server{
		opt:     opt,
		log:     opt.Log.With(logx.String("comp", "relay")),
		started: time.Now(),
	}
	if opt.RatePerSec > 0 {
		burst := opt.Burst
		if burst <= 0 {
			burst = max(1, int(math.Ceil(opt.RatePerSec)))
		}
		s.limiter = rate.NewLimiter(rate.Limit(opt.RatePerSec), burst)
	}
	return s
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.With(s.rateLimit).Post("/v1/logs", s.handleLogs)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/status", s.handleStatus)
	if s.opt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opt.Metrics.Handler())
	}
	if s.opt.Pprof {
		r.With(loopbackOnly).Mount("/debug", middleware.Profiler())
	}
	return r
}

type ingestResponse struct {
	Accepted int    `json:"accepted"`
	Filtered int    `json:"filtered"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	p := s.opt.Pipeline()
	if p == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("pipeline not ready"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("body too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	recs, err := decodeRecords(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opt.Timeout)
	defer cancel()

	var resp ingestResponse
	for _, rec := range recs {
		o, err := p.Process(ctx, rec)
		if err != nil {
			resp.Error = err.Error()
			status := http.StatusBadGateway
			if errors.Is(err, slacklog.ErrConfiguration) {
				status = http.StatusBadRequest
			}
			s.log.Warn("relay delivery failed",
				logx.Err(err),
				logx.String("request_id", RequestIDFrom(r.Context())),
				logx.Int("accepted", resp.Accepted),
				logx.NoSlack(),
			)
			writeJSON(w, status, resp)
			return
		}
		if o == slacklog.OutcomeDelivered {
			resp.Accepted++
		} else {
			resp.Filtered++
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opt.History == nil {
		writeJSON(w, http.StatusNotFound, errorBody("history disabled"))
		return
	}
	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	entries, err := s.opt.History.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type statusResponse struct {
	Status        string `json:"status"`
	Started       string `json:"started"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PipelineReady bool   `json:"pipeline_ready"`
	MinLevel      string `json:"min_level,omitempty"`
	Filters       int    `json:"filters"`
	History       bool   `json:"history"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:        "ok",
		Started:       s.started.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		History:       s.opt.History != nil,
	}
	if p := s.opt.Pipeline(); p != nil {
		resp.PipelineReady = true
		resp.MinLevel = p.MinLevel.String()
		resp.Filters = len(p.Filters)
	} else {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP server on addr until ctx is done, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay listening", logx.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		<-errCh
		s.log.Info("relay stopped")
		return err
	}
}
