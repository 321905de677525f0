package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"echvid/internal/accounts"
	"echvid/internal/acquire"
	"echvid/internal/config"
	"echvid/internal/logging"
	"echvid/internal/mediastore"
	"echvid/internal/queue"
	"echvid/internal/services"
)

const (
	requestIDHeader = "X-Request-Id"
	jsonBodyLimit   = 1 << 20
)

// StatusFunc reports daemon runtime status for GET /api/status.
type StatusFunc func(ctx context.Context) DaemonStatus

// Deps are the collaborators the HTTP transport serves.
type Deps struct {
	Config   *config.Config
	Queue    *queue.Store
	Accounts *accounts.Store
	Media    *mediastore.Store
	Acquirer *acquire.Acquirer
	Status   StatusFunc
	Logger   *slog.Logger
}

// Server holds the handlers behind the router.
type Server struct {
	cfg      *config.Config
	queue    *queue.Store
	accounts *accounts.Store
	media    *mediastore.Store
	acquirer *acquire.Acquirer
	status   StatusFunc
	tokens   *TokenService
	logger   *slog.Logger
}

// NewServer validates deps and builds a Server.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Queue == nil || deps.Accounts == nil || deps.Media == nil || deps.Acquirer == nil {
		return nil, errors.New("api: config, queue, accounts, media store and acquirer are required")
	}
	return &Server{
		cfg:      deps.Config,
		queue:    deps.Queue,
		accounts: deps.Accounts,
		media:    deps.Media,
		acquirer: deps.Acquirer,
		status:   deps.Status,
		tokens:   NewTokenService(deps.Config.API.JWTSecret, deps.Config.API.TokenTTL()),
		logger:   logging.NewComponentLogger(deps.Logger, "api"),
	}, nil
}

// NewRouter builds the full HTTP handler.
func NewRouter(deps Deps) (http.Handler, error) {
	srv, err := NewServer(deps)
	if err != nil {
		return nil, err
	}
	return srv.Routes(), nil
}

// Routes mounts every endpoint behind the shared middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.correlate)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(corsOptions(s.cfg.API.AllowedOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.With(bodyLimit(jsonBodyLimit)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.handleMe)

			r.Post("/upload", s.handleUpload)
			r.With(bodyLimit(jsonBodyLimit)).Post("/download_url", s.handleDownloadURL)
			r.With(bodyLimit(jsonBodyLimit)).Post("/full_process", s.handleFullProcess)

			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Post("/jobs/{id}/cancel", s.handleCancelJob)
			r.Post("/jobs/{id}/retry", s.handleRetryJob)

			r.Get("/videos", s.handleListVideos)
			r.Delete("/videos/{filename}", s.handleDeleteVideo)
			r.Get("/user-videos", s.handleCountVideos)
			r.Get("/output/{filename}", s.handleOutput)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/status", s.handleStatus)
				r.Post("/cleanup", s.handleCleanup)
			})
		})
	})
	return r
}

// corsOptions allows credentials only for explicit origins.
func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition", requestIDHeader},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// correlate assigns each request an id that follows any job it creates.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// silentPaths are polled often and only logged on errors.
var silentPaths = map[string]bool{
	"/api/ping": true,
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if silentPaths[r.URL.Path] && status < 400 {
			return
		}
		attrs := []logging.Attr{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("duration", time.Since(start)),
		}
		logger := s.log(r.Context())
		if status >= 500 {
			logger.Error("http request", logging.Args(attrs...)...)
			return
		}
		logger.Info("http request", logging.Args(attrs...)...)
	})
}

// bodyLimit caps JSON request bodies. Upload streams use max_upload_mb instead.
func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}
