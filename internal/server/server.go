// Package server is the HTTP front end of a voicepool.Pool.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/cache"
)

// Server serves the speech API and the credential admin API.
type Server struct {
	pool    *voicepool.Pool
	cache   cache.Cache
	cfg     voicepool.ServerConfig
	voices  voicepool.VoiceCatalog
	sweeper *voicepool.Sweeper
	metrics http.Handler
	logger  *slog.Logger
	now     func() time.Time

	loginDelay time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVoices sets the catalog served by GET /api/v1/voices.
func WithVoices(v voicepool.VoiceCatalog) Option {
	return func(s *Server) { s.voices = v }
}

// WithSweeper routes active-only admin syncs through a running sweeper.
func WithSweeper(sw *voicepool.Sweeper) Option {
	return func(s *Server) { s.sweeper = sw }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLoginDelay sets the pause after a failed admin login. Defaults to 1s.
func WithLoginDelay(d time.Duration) Option {
	return func(s *Server) { s.loginDelay = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server. cfg should already carry its defaults.
func New(pool *voicepool.Pool, c cache.Cache, cfg voicepool.ServerConfig, opts ...Option) *Server {
	s := &Server{
		pool:       pool,
		cache:      c,
		cfg:        cfg,
		loginDelay: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Apply defaults after options.
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loginDelay < 0 {
		s.loginDelay = time.Second
	}
	return s
}

// Handler returns the routes wrapped with logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/tts", s.rateLimit(http.HandlerFunc(s.Synthesize)))
	mux.Handle("POST /api/v1/split", s.rateLimit(http.HandlerFunc(s.Split)))
	mux.HandleFunc("GET /api/v1/quota", s.Quota)
	mux.HandleFunc("GET /api/v1/voices", s.Voices)
	mux.Handle("POST /api/v1/voices/{id}/preview", s.rateLimit(http.HandlerFunc(s.Preview)))

	mux.HandleFunc("POST /api/v1/admin/login", s.Login)
	mux.Handle("POST /api/v1/admin/logout", s.requireAdmin(http.HandlerFunc(s.Logout)))
	mux.Handle("GET /api/v1/admin/credentials", s.requireAdmin(http.HandlerFunc(s.ListCredentials)))
	mux.Handle("POST /api/v1/admin/credentials", s.requireAdmin(http.HandlerFunc(s.CreateCredential)))
	mux.Handle("PATCH /api/v1/admin/credentials/{id}", s.requireAdmin(http.HandlerFunc(s.UpdateCredential)))
	mux.Handle("DELETE /api/v1/admin/credentials/{id}", s.requireAdmin(http.HandlerFunc(s.DeleteCredential)))
	mux.Handle("POST /api/v1/admin/credentials/{id}/sync", s.requireAdmin(http.HandlerFunc(s.SyncCredential)))
	mux.Handle("POST /api/v1/admin/sync", s.requireAdmin(http.HandlerFunc(s.SyncAll)))

	mux.HandleFunc("GET /healthz", s.Health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(s.logger, mux)
	wrapped = loggingMiddleware(s.logger, wrapped)

	return wrapped
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   s.now().UTC().Format(time.RFC3339),
	})
}
