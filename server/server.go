// Package server exposes the operational HTTP surface of multitool-chat:
// health, Prometheus metrics and the step journal of past runs.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/assistant"
	"github.com/dshills/multitool-chat/graph/store"
)

// Journal reads the persisted steps of a run.
type Journal interface {
	Steps(ctx context.Context, runID string) ([]store.StepRecord[assistant.TurnState], error)
}

// Config configures the server.
type Config struct {
	ListenAddr string
}

// Server serves /health, /metrics and /runs/:id.
type Server struct {
	config   Config
	gatherer prometheus.Gatherer
	journal  Journal
	logger   *zap.Logger
	app      *fiber.App
}

type stepView struct {
	Step       int    `json:"step"`
	NodeID     string `json:"node_id"`
	Messages   int    `json:"messages"`
	ToolRounds int    `json:"tool_rounds"`
	LastRole   string `json:"last_role,omitempty"`
}

// New creates a Server. journal may be nil, in which case /runs/:id is not
// registered.
func New(config Config, gatherer prometheus.Gatherer, journal Journal, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		gatherer: gatherer,
		journal:  journal,
		logger:   logger,
		app:      app,
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if journal != nil {
		app.Get("/runs/:id", s.handleRun)
	}

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("starting metrics server", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleRun(c *fiber.Ctx) error {
	runID := c.Params("id")

	records, err := s.journal.Steps(c.UserContext(), runID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(map[string]string{"error": "run not found"})
	}
	if err != nil {
		s.logger.Error("failed to read run journal", zap.String("run_id", runID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(map[string]string{"error": "failed to read run"})
	}

	views := make([]stepView, 0, len(records))
	for _, rec := range records {
		v := stepView{
			Step:       rec.Step,
			NodeID:     rec.NodeID,
			Messages:   len(rec.State.Messages),
			ToolRounds: rec.State.ToolRounds,
		}
		if n := len(rec.State.Messages); n > 0 {
			v.LastRole = rec.State.Messages[n-1].Role
		}
		views = append(views, v)
	}

	return c.JSON(map[string]interface{}{
		"run_id": runID,
		"steps":  views,
	})
}
