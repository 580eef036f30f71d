package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

const defaultMaxUploadBytes = 20 << 20

// Metrics is the subset of HTTP metrics the router needs.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(format string)
}

type Deps struct {
	Pipeline ports.SubmissionPipeline
	Settings ports.SettingsService
	Sessions ports.SessionRegistry
	Uploads  ports.UploadService
	Journal  ports.BatchJournal
	Blobs    ports.BlobStore
	Metrics  Metrics
	Logger   *slog.Logger
}

type Options struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	MaxUploadBytes   int64
}

type Router struct {
	pipeline ports.SubmissionPipeline
	settings ports.SettingsService
	sessions ports.SessionRegistry
	uploads  ports.UploadService
	journal  ports.BatchJournal
	blobs    ports.BlobStore
	metrics  Metrics
	logger   *slog.Logger
	opts     Options
}

func NewRouter(deps Deps, opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Service == "" {
		opts.Service = "grading-api"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		pipeline: deps.Pipeline,
		settings: deps.Settings,
		sessions: deps.Sessions,
		uploads:  deps.Uploads,
		journal:  deps.Journal,
		blobs:    deps.Blobs,
		metrics:  deps.Metrics,
		logger:   logger,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
		})
		v1.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
		})

		v1.Get("/settings", rt.getSettings)
		v1.Put("/settings", rt.saveSettings)
		v1.Get("/settings/files", rt.listConfigFiles)
		v1.Post("/settings/load", rt.loadSettings)

		v1.Get("/attachments", rt.listAttachments)
		v1.Get("/blobs", rt.downloadBlob)

		v1.Get("/batches", rt.listBatches)
		v1.Get("/batches/{batch}/candidates", rt.splitCandidates)
		v1.Get("/batches/{batch}/journal", rt.batchJournal)

		v1.Post("/sessions", rt.openSession)
		v1.Route("/sessions/{sessionID}", func(s chi.Router) {
			s.Delete("/", rt.closeSession)
			s.Get("/exams", rt.sessionExams)
			s.Put("/settings", rt.sessionSettings)
			s.Post("/normalize", rt.normalize)
			s.Post("/split", rt.split)
			s.Post("/grade", rt.grade)
			s.Post("/deliver", rt.deliver)
		})

		v1.Post("/uploads", rt.submitUpload)
	})

	var handler http.Handler = r
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}
