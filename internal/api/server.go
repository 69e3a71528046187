// Package api exposes the document pipeline over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/capture"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/config"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/export"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/forms"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/metrics"
	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/store"
)

// Server handles HTTP API and WebSocket
type Server struct {
	app      *fiber.App
	config   *config.Config
	service  *ai.Service
	store    *store.Store
	forms    *forms.Registry
	exporter *export.Service
	capturer *capture.Capturer
	hub      *progressHub
	logger   *zap.Logger
	version  string
}

// New creates a new API server
func New(cfg *config.Config, service *ai.Service, st *store.Store, registry *forms.Registry, capturer *capture.Capturer, logger *zap.Logger, version string) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    bodyLimit(cfg.Storage.MaxImageMB),
	})

	s := &Server{
		app:      app,
		config:   cfg,
		service:  service,
		store:    st,
		forms:    registry,
		exporter: export.NewService(registry, logger),
		capturer: capturer,
		hub:      newProgressHub(),
		logger:   logger,
		version:  version,
	}

	s.setupRoutes()
	return s
}

// bodyLimit sizes the request cap so a base64 data URL of the largest
// accepted image still fits.
func bodyLimit(maxImageMB int) int {
	if maxImageMB <= 0 {
		maxImageMB = 10
	}
	return maxImageMB * 2 * 1024 * 1024
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Auth.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.recordRequests())

	// Health and metrics
	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	s.app.Get("/api/metrics", s.handleMetricsJSON)

	api := s.app.Group("/api")

	// Public routes
	api.Post("/auth/login", s.handleLogin)

	// Protected routes
	protected := api.Use(s.authMiddleware())

	// Documents
	protected.Post("/documents", s.handleCreateDocument)
	protected.Get("/documents", s.handleListDocuments)
	protected.Get("/documents/:id", s.handleGetDocument)
	protected.Delete("/documents/:id", s.handleDeleteDocument)
	protected.Post("/documents/:id/process", s.handleProcessDocument)
	protected.Get("/documents/:id/export", s.handleExportDocument)

	// Stateless pipeline calls
	protected.Post("/extract", s.handleExtract)
	protected.Post("/analyze", s.handleAnalyze)
	protected.Post("/capture", s.handleCapture)

	// Providers and forms
	protected.Get("/providers", s.handleListProviders)
	protected.Get("/forms", s.handleListForms)

	// Batch jobs
	protected.Post("/batch", s.handleCreateBatch)
	protected.Get("/batch", s.handleListBatches)
	protected.Get("/batch/:id", s.handleGetBatch)

	// WebSocket batch progress
	s.app.Use("/api/batch/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/api/batch/:id/ws", websocket.New(s.handleBatchWS))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber instance for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
