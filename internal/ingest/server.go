package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/flowforge-ai/flowforge/internal/config"
	ferrors "github.com/flowforge-ai/flowforge/internal/errors"
	"github.com/flowforge-ai/flowforge/internal/health"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/requestid"
)

// Response is the envelope every webhook endpoint returns.
type Response struct {
	Status  string  `json:"status"` // success | error
	Message string  `json:"message"`
	Data    *Result `json:"data,omitempty"`
}

// Server is the webhook ingestion HTTP server.
type Server struct {
	app      *fiber.App
	pipeline *Pipeline
	projects *config.ProjectSet
	adapters map[string]Adapter
	checker  *health.Checker
	logger   zerolog.Logger
	port     int
}

// NewServer creates and wires the ingestion server.
func NewServer(
	port int,
	pipeline *Pipeline,
	projects *config.ProjectSet,
	adapters map[string]Adapter,
	checker *health.Checker,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 << 20,
	})

	s := &Server{
		app:      app,
		pipeline: pipeline,
		projects: projects,
		adapters: adapters,
		checker:  checker,
		logger:   logger.With().Str("component", "ingest_server").Logger(),
		port:     port,
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(func(c *fiber.Ctx) error {
		reqID := requestid.Generate()
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	app.Get("/healthz", s.liveness)
	app.Get("/readyz", s.readiness)
	if m != nil {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
		app.Get("/metrics", func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}
	app.Post("/webhook/:project/:source", s.handleWebhook)

	return s
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	project := s.projects.Get(c.Params("project"))
	if project == nil {
		return errorResponse(c, fiber.StatusNotFound, fmt.Sprintf("unknown project %q", c.Params("project")))
	}
	adapter, ok := s.adapters[c.Params("source")]
	if !ok {
		return errorResponse(c, fiber.StatusNotFound, fmt.Sprintf("unknown webhook source %q", c.Params("source")))
	}

	req := NewRequest(c.Body(),
		func(name string) string { return c.Get(name) },
		func(name string) string { return c.Query(name) },
	)

	result, err := s.pipeline.Process(c.Context(), project, adapter, req)
	if err != nil {
		status := statusFor(err)
		resp := Response{Status: "error", Message: err.Error(), Data: result}
		return c.Status(status).JSON(resp)
	}

	return c.JSON(Response{Status: "success", Message: "webhook processed", Data: result})
}

// statusFor maps pipeline errors onto HTTP statuses. Post-commit dispatch
// failures are 500s even though the ticket is committed.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ferrors.ErrAuthFailure):
		return fiber.StatusUnauthorized
	case errors.Is(err, ferrors.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) readiness(c *fiber.Ctx) error {
	ready, results := s.checker.Summary(c.Context())
	resp := fiber.Map{"checks": results}
	if !ready {
		resp["status"] = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	resp["status"] = "ready"
	return c.JSON(resp)
}

func errorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{Status: "error", Message: message})
}

// errorHandler keeps internals out of 500 responses while logging full
// context for operators.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "internal error"
		}
		return c.Status(code).JSON(Response{Status: "error", Message: message})
	}
}

// Start begins serving. Blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info().Str("addr", addr).Msg("ingest server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("ingest server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
