// Package server exposes the chat gateway, the profile service and the
// query endpoint over HTTP.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/pocheck/internal/assistant"
	"github.com/xaenox/pocheck/internal/catalog"
	"github.com/xaenox/pocheck/internal/models"
	"github.com/xaenox/pocheck/internal/orchestrator"
	"github.com/xaenox/pocheck/internal/params"
	"github.com/xaenox/pocheck/internal/render"
	"github.com/xaenox/pocheck/internal/storage"
)

type Config struct {
	// UserID selects the profile served by /api/user-profile.
	UserID      string
	CORSOrigins string
}

type Server struct {
	app       *fiber.App
	cfg       Config
	responder assistant.Responder
	store     storage.Storage
	catalog   *catalog.Catalog
	metrics   *metrics
	logger    *zap.Logger
}

func New(cfg Config, responder assistant.Responder, store storage.Storage, cat *catalog.Catalog, logger *zap.Logger) *Server {
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "pocheck-gateway",
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		cfg:       cfg,
		responder: responder,
		store:     store,
		catalog:   cat,
		metrics:   newMetrics(reg),
		logger:    logger,
	}
	s.routes(reg)
	return s
}

func (s *Server) routes(reg *prometheus.Registry) {
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now()})
	})

	api := s.app.Group("/api", s.metrics.middleware())
	api.Get("/user-profile", s.handleProfile)
	api.Post("/chat", s.handleChat)
	api.Post("/query", s.handleQuery)
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info("Gateway listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	profile, err := s.store.GetProfile(c.UserContext(), s.cfg.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "profile not found")
	}
	if err != nil {
		s.logger.Error("Failed to load profile", zap.Error(err), zap.String("user_id", s.cfg.UserID))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(profile)
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid chat request")
	}
	if strings.TrimSpace(req.Message) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}
	for _, turn := range req.History {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			return fiber.NewError(fiber.StatusBadRequest, "history role must be user or assistant")
		}
	}

	content, err := s.responder.Respond(c.UserContext(), req)
	if err != nil {
		s.logger.Error("Failed to answer chat", zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "language model unavailable")
	}

	_, hasSQL := orchestrator.ExtractSQL(content)
	s.metrics.chat.WithLabelValues(boolLabel(hasSQL)).Inc()
	return c.JSON(models.ChatResponse{Content: content})
}

func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req models.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query request")
	}

	sqlText := req.SQL
	if req.TemplateID != "" {
		tpl, ok := s.catalog.Lookup(req.TemplateID)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "unknown template "+req.TemplateID)
		}
		sqlText = tpl.SQL
	}
	if strings.TrimSpace(sqlText) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "template_id or sql is required")
	}
	if err := checkSelect(sqlText); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	stmt := render.Bind{Placeholder: s.store.Placeholder}.Render(sqlText, params.FromMap(req.Params))
	if missing := render.Unresolved(stmt.SQL); len(missing) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "missing parameters: "+strings.Join(missing, ", "))
	}

	result, err := s.store.Query(c.UserContext(), stmt)
	if err != nil {
		s.logger.Error("Query failed", zap.Error(err), zap.String("template_id", req.TemplateID))
		return fiber.NewError(fiber.StatusBadGateway, "query failed")
	}
	return c.JSON(result)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
