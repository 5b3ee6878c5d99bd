package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Hero472/bdnsql/internal/config"
	"github.com/Hero472/bdnsql/internal/domain"
	"github.com/Hero472/bdnsql/internal/report"
	"github.com/Hero472/bdnsql/internal/workflow"
)

// Tracker is the workflow surface the handlers drive.
type Tracker interface {
	Register(ctx context.Context, email, courseID string) error
	Unregister(ctx context.Context, email, courseID string) error
	CompleteClass(ctx context.Context, email, courseID, classID string) (domain.ProgressRecord, error)
	UpdateStatus(ctx context.Context, email, courseID string, status domain.Status) (domain.ProgressRecord, error)
	Progress(ctx context.Context, email, courseID string) (domain.ProgressRecord, error)
	UserCourses(ctx context.Context, email string) ([]domain.ProgressRecord, error)
	SubmitRating(ctx context.Context, email, courseID string, value float64) (workflow.RatingOutcome, error)
	CourseRating(ctx context.Context, courseID string) (domain.RatingAggregate, error)
	PostComment(ctx context.Context, in workflow.CommentInput) (workflow.CommentOutcome, error)
	Course(ctx context.Context, courseID string) (workflow.CourseOverview, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	tracker  Tracker
	checks   map[string]HealthChecker
	validate *validator.Validate
	reporter report.Reporter
	logger   *log.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes. checks
// names the stores probed by /healthz; 5xx failures go to reporter.
func New(cfg config.Config, tracker Tracker, checks map[string]HealthChecker, reporter report.Reporter, logger *log.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if logger == nil {
		logger = log.Default()
	}
	if reporter == nil {
		reporter = report.NewLogReporter(logger)
	}

	s := &Server{
		cfg:      cfg,
		tracker:  tracker,
		checks:   checks,
		validate: newValidator(),
		reporter: reporter,
		logger:   logger,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Post("/register", s.handleRegister)
	s.router.Delete("/register", s.handleUnregister)
	s.router.Post("/complete-class", s.handleCompleteClass)
	s.router.Post("/course-status", s.handleUpdateStatus)
	s.router.Post("/rating", s.handleSubmitRating)
	s.router.Get("/courses/{courseID}", s.handleGetCourse)
	s.router.Get("/courses/{courseID}/rating", s.handleGetRating)
	s.router.Post("/comments", s.handleCreateComment)
	s.router.Route("/users/{email}/courses", func(r chi.Router) {
		r.Get("/", s.handleUserCourses)
		r.Get("/{courseID}", s.handleUserCourse)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server asynchronously.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type healthResponse struct {
	Status  string   `json:"status"`
	Failing []string `json:"failing,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var failing []string
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			s.logger.Printf("healthz: %s: %v", name, err)
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		s.respondJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failing: failing})
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
