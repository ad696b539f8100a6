package relay

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"slacklog/pkg/logx"
)

type (
	ctxKey  struct{}
	peerKey struct{}
)

const requestIDHeader = "X-Request-ID"

// requestID keeps a caller-supplied X-Request-ID or assigns a UUID. It
// runs before RealIP and records the socket peer for loopbackOnly.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		ctx = context.WithValue(ctx, peerKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// accessLog logs each request at debug and counts it. Access lines never
// go to Slack.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.opt.Metrics != nil {
			s.opt.Metrics.HTTPRequests.WithLabelValues(strconv.Itoa(status), r.Method).Inc()
		}
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("remote", r.RemoteAddr),
			logx.String("request_id", RequestIDFrom(r.Context())),
			logx.NoSlack(),
		)
	})
}

// rateLimit rejects ingest requests beyond the configured rate with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			res := s.limiter.Reserve()
			if d := res.Delay(); d > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
				writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// loopbackOnly answers 403 unless the socket peer is a loopback IP.
// Forwarding headers are ignored.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peer, ok := r.Context().Value(peerKey{}).(string)
		if !ok {
			peer = r.RemoteAddr
		}
		host, _, err := net.SplitHostPort(peer)
		if err != nil {
			host = peer
		}
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			writeJSON(w, http.StatusForbidden, errorBody("profiler is loopback only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
