package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sppzpp/reportcard-hub/internal/interface/http/handlers"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL MIDDLEWARE
// Порядок снаружи внутрь: лимит, CORS, заголовки безопасности, recovery,
// журнал, request ID. Лимит отсекает лишнее до любой работы; request ID
// назначается первым, чтобы журнал и recovery его видели.
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) middleware(h http.Handler) http.Handler {
	chain := []handlers.Middleware{
		s.cors,
		handlers.SecurityHeadersMiddleware,
		s.recovery,
		s.accessLog,
		s.requestID,
	}
	if s.limiter != nil {
		chain = append([]handlers.Middleware{s.rateLimit}, chain...)
	}
	return handlers.Chain(chain...)(h)
}

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// requestID keeps a caller-supplied X-Request-ID (the web client sets one
// per chat turn) or mints a UUID, and puts a tagged logger in the context.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog writes one line per request. Health probes log at debug so
// they do not drown the interesting lines.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		log := s.logger.Info
		switch {
		case rw.statusCode >= 500:
			log = s.logger.Error
		case isProbe(r.URL.Path):
			log = s.logger.Debug
		}
		log("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Duration("latency", time.Since(start)),
			logger.String("ip", clientIP(r)),
			logger.String("request_id", w.Header().Get("X-Request-ID")),
		)
	})
}

func isProbe(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/live":
		return true
	}
	return false
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			s.logger.Error("panic recovered",
				logger.Any("panic", p),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
				logger.String("request_id", getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

// cors answers preflights itself. The school page is usually served from
// another origin than the API.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait, ok := s.limiter.allow(clientIP(r), time.Now()); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)+1))
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// IP LIMITER
// Фиксированное окно на IP. Вся карта сбрасывается при смене окна, поэтому
// фоновая очистка не нужна.
// ══════════════════════════════════════════════════════════════════════════════

type ipLimiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	start  time.Time
	counts map[string]int
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{limit: limit, window: window, counts: make(map[string]int)}
}

// allow counts a request from ip at now. When the ip is over the limit it
// returns how long until the window resets.
func (l *ipLimiter) allow(ip string, now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.start) >= l.window {
		l.start = now
		clear(l.counts)
	}
	if l.counts[ip] >= l.limit {
		return l.start.Add(l.window).Sub(now), false
	}
	l.counts[ip]++
	return 0, true
}
