package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slacklog/internal/history"
	"slacklog/internal/metrics"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []slacklog.Payload
	err  error
}

func (f *fakeSender) Send(_ context.Context, p slacklog.Payload, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

func newTestServer(t *testing.T, p *slacklog.Pipeline, st history.Store) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(nil)
	return New(Options{
		Pipeline: func() *slacklog.Pipeline { return p },
		History:  st,
		Metrics:  m,
		Log:      logx.Nop(),
	}), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPostSingleRecord(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	cfg := slacklog.NewConfiguration(slacklog.WithService("relay"))
	f, err := slacklog.Default(cfg)
	require.NoError(t, err)
	srv, _ := newTestServer(t, &slacklog.Pipeline{Formatter: f, Sender: sender}, nil)

	rec := do(t, srv.Router(), http.MethodPost, "/v1/logs",
		`{"level":"error","message":"disk full","extra_fields":{"host":"db-1","free":0}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["accepted"])
	assert.Equal(t, 0.0, body["filtered"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	require.Len(t, sender.sent, 1)
	raw, err := json.Marshal(sender.sent[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "free: 0\\nhost: db-1")
}

func TestPostArrayCountsFiltered(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	p := &slacklog.Pipeline{
		Sender:   sender,
		MinLevel: slacklog.LevelWarn,
		Filters:  []slacklog.Filter{slacklog.NewFilter(slacklog.FilterConfig{Environment: "prod"}, slacklog.AnyAllowList)},
	}
	srv, _ := newTestServer(t, p, nil)

	rec := do(t, srv.Router(), http.MethodPost, "/v1/logs", `[
		{"level":"error","message":"a","filter":{"environment":"prod"}},
		{"level":"error","message":"b","filter":{"environment":"dev"}},
		{"level":"info","message":"c"},
		{"level":50,"message":"d"}
	]`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, 2.0, body["accepted"])
	assert.Equal(t, 2.0, body["filtered"])
	assert.Len(t, sender.sent, 2)
}

func TestPostRejectsBadInput(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &slacklog.Pipeline{Sender: &fakeSender{}}, nil)
	h := srv.Router()

	for name, body := range map[string]string{
		"malformed":      `{"level":`,
		"unknown level":  `{"level":"loud","message":"x"}`,
		"negative level": `{"level":-1,"message":"x"}`,
		"empty array":    `[]`,
		"scalar":         `"hello"`,
		"bad time":       `{"message":"x","time":"yesterday"}`,
		"bad fields":     `{"message":"x","extra_fields":[1]}`,
	} {
		rec := do(t, h, http.MethodPost, "/v1/logs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, decodeBody(t, rec), "error", name)
	}
}

func TestPostDeliveryFailureIs502(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, &slacklog.Pipeline{Sender: &fakeSender{err: errors.New("status 500")}}, nil)

	rec := do(t, srv.Router(), http.MethodPost, "/v1/logs", `{"level":"error","message":"x"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "status 500", decodeBody(t, rec)["error"])

	metricsRec := do(t, srv.Router(), http.MethodGet, "/metrics", "")
	assert.Contains(t, metricsRec.Body.String(), `slackrelay_http_requests_total{method="POST",status="502"} 1`)
}

func TestPostWithoutPipeline(t *testing.T) {
	t.Parallel()
	srv := New(Options{Pipeline: func() *slacklog.Pipeline { return nil }})
	rec := do(t, srv.Router(), http.MethodPost, "/v1/logs", `{"message":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, srv.Router(), http.MethodGet, "/status", "")
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestPostBodyTooLarge(t *testing.T) {
	t.Parallel()
	srv := New(Options{
		Pipeline:     func() *slacklog.Pipeline { return &slacklog.Pipeline{Sender: &fakeSender{}} },
		MaxBodyBytes: 16,
	})
	rec := do(t, srv.Router(), http.MethodPost, "/v1/logs", `{"message":"this is far too long"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	st, err := history.Open(history.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "h")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.Append(context.Background(), history.Entry{ID: id, Outcome: "delivered"}))
	}

	srv, _ := newTestServer(t, &slacklog.Pipeline{Sender: &fakeSender{}}, st)
	h := srv.Router()

	rec := do(t, h, http.MethodGet, "/v1/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "c", body.Entries[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/history?limit=zero", "").Code)

	noHist, _ := newTestServer(t, &slacklog.Pipeline{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, noHist.Router(), http.MethodGet, "/v1/history", "").Code)
}

func TestStatusAndRequestID(t *testing.T) {
	t.Parallel()
	p := &slacklog.Pipeline{MinLevel: slacklog.LevelError, Filters: []slacklog.Filter{{}}}
	srv, _ := newTestServer(t, p, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["pipeline_ready"])
	assert.Equal(t, "ERROR", body["min_level"])
	assert.Equal(t, 1.0, body["filters"])
}

func TestPostRateLimited(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	srv := New(Options{
		Pipeline:   func() *slacklog.Pipeline { return &slacklog.Pipeline{Sender: sender} },
		RatePerSec: 0.001,
		Burst:      1,
	})
	h := srv.Router()

	first := do(t, h, http.MethodPost, "/v1/logs", `{"message":"one"}`)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := do(t, h, http.MethodPost, "/v1/logs", `{"message":"two"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Len(t, sender.sent, 1)

	// status is never limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/status", "").Code)
}

func TestProfilerLoopbackOnly(t *testing.T) {
	t.Parallel()
	srv := New(Options{Pipeline: func() *slacklog.Pipeline { return nil }, Pprof: true})
	h := srv.Router()

	local := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	local.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, local)
	assert.Equal(t, http.StatusOK, rec.Code)

	remote := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	remote.RemoteAddr = "203.0.113.7:5555"
	remote.Header.Set("X-Real-IP", "127.0.0.1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, remote)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	off := New(Options{Pipeline: func() *slacklog.Pipeline { return nil }})
	rec = httptest.NewRecorder()
	off.Router().ServeHTTP(rec, local)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
