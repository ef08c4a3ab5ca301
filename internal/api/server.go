// Package api exposes the HTTP surface: chat turns, session and task
// management, auth, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/auth"
	"github.com/clearity-app/clearity/internal/config"
	"github.com/clearity-app/clearity/internal/health"
	"github.com/clearity-app/clearity/internal/metrics"
	"github.com/clearity-app/clearity/internal/pipeline"
	"github.com/clearity-app/clearity/internal/requestid"
	"github.com/clearity-app/clearity/internal/store"
)

// localUserID is the shared account used when auth is disabled.
const localUserID = "local"

// Server is the HTTP front of the service.
type Server struct {
	app     *fiber.App
	store   *store.Store
	orch    *pipeline.Orchestrator
	issuer  *auth.TokenIssuer
	checker *health.Checker
	metrics *metrics.Metrics
	cfg     *config.Config
	logger  zerolog.Logger
}

// New wires routes and middleware.
func New(cfg *config.Config, st *store.Store, orch *pipeline.Orchestrator,
	issuer *auth.TokenIssuer, checker *health.Checker, m *metrics.Metrics,
	logger zerolog.Logger) *Server {

	s := &Server{
		store:   st,
		orch:    orch,
		issuer:  issuer,
		checker: checker,
		metrics: m,
		cfg:     cfg,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "clearity",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          120 * time.Second,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(s.requestID())
	s.app.Use(s.accessLog())
	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}))
	}
	if cfg.RateLimitRPS > 0 {
		s.app.Use(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware())
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.handleLiveness)
	s.app.Get("/readyz", s.handleReadiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	authGroup := s.app.Group("/api/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/anonymous", s.handleAnonymous)

	api := s.app.Group("/api", s.authenticate())
	api.Get("/auth/me", s.handleMe)
	api.Post("/chat", s.handleChat)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Get("/sessions/:id/messages", s.handleListMessages)
	api.Get("/sessions/:id/mindmap", s.handleGetMindmap)
	api.Get("/sessions/:id/analysis", s.handleGetAnalysis)
	api.Get("/sessions/:id/tasks", s.handleListTasks)
	api.Patch("/tasks/:id", s.handleUpdateTask)
	api.Get("/snapshots", s.handleListSnapshots)
}

// Listen starts serving on the configured port.
func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.HTTPPort))
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// requestID tags every request; the id flows through the user context into
// logs and responses.
func (s *Server) requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		id := c.Get("X-Request-ID")
		if id == "" {
			ctx, id = requestid.New(ctx)
		} else {
			ctx = requestid.WithRequestID(ctx, id)
		}
		c.Locals("request_id", id)
		c.SetUserContext(ctx)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}

func (s *Server) accessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.Info().
			Str("request_id", fmt.Sprint(c.Locals("request_id"))).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
		return err
	}
}

// authenticate resolves the user id for the request. With auth enabled a
// bearer token is required; without it everything runs as the local user.
func (s *Server) authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.cfg.AuthEnabled() || s.issuer == nil {
			c.Locals("user_id", localUserID)
			return c.Next()
		}
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return problem(c, fiber.StatusUnauthorized, "missing bearer token")
		}
		userID, err := s.issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return problem(c, fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func (s *Server) userID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return problem(c, fe.Code, fe.Message)
	}
	return s.respondError(c, err)
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return problem(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrEmptyMessage):
		return problem(c, fiber.StatusBadRequest, "message is empty")
	case errors.Is(err, apperrors.ErrInvalidInput):
		return problem(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrUnauthorized):
		return problem(c, fiber.StatusUnauthorized, "unauthorized")
	default:
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("internal error")
		return problem(c, fiber.StatusInternalServerError, "internal error")
	}
}

func problem(c *fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

func (s *Server) handleLiveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleReadiness(c *fiber.Ctx) error {
	results := s.checker.RunAll(c.UserContext())
	status := fiber.StatusOK
	for _, st := range results {
		if st == health.StatusDown {
			status = fiber.StatusServiceUnavailable
			break
		}
	}
	return c.Status(status).JSON(results)
}
