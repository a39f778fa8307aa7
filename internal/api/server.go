package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/govlens/assessment-console/internal/audit"
	"github.com/govlens/assessment-console/internal/catalog"
	"github.com/govlens/assessment-console/internal/config"
	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/tracker"
	"github.com/govlens/assessment-console/internal/wizard"
)

// PlatformClient is the slice of the upstream platform the API serves
// directly, outside the wizard flow
type PlatformClient interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	GetAssessmentStatus(ctx context.Context, id string) (*models.Assessment, error)
	ListFindings(ctx context.Context, id string) ([]models.Finding, error)
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	wizards        *wizard.Manager
	trackers       *tracker.Manager
	platform       PlatformClient
	catalogLoader  *catalog.Loader
	auditRepo      audit.Repository
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. auditRepo may be nil when the audit
// trail is disabled.
func NewServer(
	cfg config.ServerConfig,
	wizards *wizard.Manager,
	trackers *tracker.Manager,
	platformClient PlatformClient,
	loader *catalog.Loader,
	auditRepo audit.Repository,
) *Server {
	s := &Server{
		config:         cfg,
		wizards:        wizards,
		trackers:       trackers,
		platform:       platformClient,
		catalogLoader:  loader,
		auditRepo:      auditRepo,
		authMiddleware: NewAuthMiddleware(cfg.AuthToken),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Clients
		r.Get("/clients", s.handleListClients)

		// Catalog
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/domains", s.handleListDomains)
			r.Get("/domains/{domainId}", s.handleGetDomain)
			r.Get("/domains/{domainId}/types", s.handleListTypes)
			r.Get("/types/{typeId}", s.handleGetType)
		})

		// Wizard sessions
		r.Route("/wizards", func(r chi.Router) {
			r.Post("/", s.handleOpenWizard)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWizard)
				r.Delete("/", s.handleCloseWizard)
				r.Post("/client", s.handleSelectClient)
				r.Post("/name", s.handleSetName)
				r.Post("/types/{typeId}/toggle", s.handleToggleType)
				r.Post("/environment", s.handleSelectEnvironment)
				r.Post("/preferences", s.handleSetPreferences)
				r.Post("/advance", s.handleAdvance)
				r.Post("/back", s.handleRetreat)
				r.Get("/summary", s.handleGetSummary)
				r.Post("/submit", s.handleSubmit)
				r.Get("/submissions", s.handleListWizardSubmissions)
			})
		})

		// Assessments
		r.Route("/assessments", func(r chi.Router) {
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAssessment)
				r.Get("/findings", s.handleListFindings)
				r.Post("/track", s.handleTrackAssessment)
				r.Delete("/track", s.handleStopTracking)
				r.Get("/progress", s.handleGetProgress)
				r.Get("/progress/stream", s.handleProgressStream)
				r.Post("/results/view", s.handleViewResults)
			})
		})

		// Submission audit trail
		r.Get("/submissions", s.handleListRecentSubmissions)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
