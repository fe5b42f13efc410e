// File: internal/handlers/handler.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-telemed/internal/blob"
	"github.com/iyunix/go-telemed/internal/events"
	"github.com/iyunix/go-telemed/internal/middleware"
	"github.com/iyunix/go-telemed/internal/ratelimit"
	"github.com/iyunix/go-telemed/internal/repository"
)

// Logger is the subset of services.Logger the handlers need.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Config carries the limits and secrets the routes depend on.
type Config struct {
	JWTSecret     []byte
	SessionTTL    time.Duration
	MaxJSONBytes  int64
	MaxImageBytes int64
	// DefaultConsultationLimit applies when ?limit is missing or invalid.
	// Larger limits are honored as given so local history reads match.
	DefaultConsultationLimit int
	PublishTimeout           time.Duration
}

// DefaultConfig mirrors the server defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:               24 * time.Hour,
		MaxJSONBytes:             50 << 20,
		MaxImageBytes:            20 << 20,
		DefaultConsultationLimit: 10,
		PublishTimeout:           5 * time.Second,
	}
}

// Handler serves the REST API over a repository.Store.
type Handler struct {
	store  repository.Store
	blobs  blob.Store
	events events.Publisher
	log    Logger
	cfg    Config
	now    func() time.Time
}

func New(store repository.Store, blobs blob.Store, publisher events.Publisher, log Logger, cfg Config) *Handler {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handler{
		store:  store,
		blobs:  blobs,
		events: publisher,
		log:    log,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewRouter mounts every route under /api plus /metrics when metrics is set.
func NewRouter(h *Handler, limiter *ratelimit.Limiter, metrics *middleware.Metrics) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RecoverPanic(h.log))
	r.Use(middleware.RequestLogger(h.log))
	if metrics != nil {
		r.Use(metrics.Middleware)
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.BodyLimit(h.cfg.MaxJSONBytes, h.cfg.MaxImageBytes))

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api.HandleFunc("/patients", h.CreatePatient).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id}", h.GetPatient).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}", h.UpdatePatient).Methods(http.MethodPut)

	api.HandleFunc("/consultations", h.CreateConsultation).Methods(http.MethodPost)
	api.HandleFunc("/consultations/patient/{id}", h.ListConsultations).Methods(http.MethodGet)
	api.HandleFunc("/consultations/{id}", h.DeleteConsultation).Methods(http.MethodDelete)

	api.HandleFunc("/medical-records", h.CreateMedicalRecord).Methods(http.MethodPost)
	api.HandleFunc("/medical-records/patient/{id}", h.ListMedicalRecords).Methods(http.MethodGet)

	api.HandleFunc("/images", h.UploadImage).Methods(http.MethodPost)
	api.HandleFunc("/images/patient/{id}", h.ListImages).Methods(http.MethodGet)
	api.HandleFunc("/images/{id}/data", h.GetImageData).Methods(http.MethodGet)

	api.HandleFunc("/analytics", h.CreateAnalyticsEvent).Methods(http.MethodPost)
	api.HandleFunc("/analytics", h.QueryAnalytics).Methods(http.MethodGet)

	login := http.Handler(http.HandlerFunc(h.Login))
	if limiter != nil {
		login = middleware.RateLimit(limiter, "login", h.log)(login)
	}
	api.Handle("/auth/login", login).Methods(http.MethodPost)
	api.Handle("/auth/me", middleware.RequireSession(h.cfg.JWTSecret, h.log)(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	api.HandleFunc("/sync", h.Sync).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/stats", h.DashboardStats).Methods(http.MethodGet)

	// A known path with the wrong method is just another unknown endpoint.
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Endpoint not found", http.StatusNotFound)
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	return middleware.CORS(r)
}

// detached outlives the request so post-response work is not cancelled with it.
func (h *Handler) detached(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), h.cfg.PublishTimeout)
}
