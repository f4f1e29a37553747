package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/auth"
	"adte.com/adte/creative-agent/internal/config"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/generate"
	httpHandlers "adte.com/adte/creative-agent/internal/http"
	mcpHandlers "adte.com/adte/creative-agent/internal/mcp"
	"adte.com/adte/creative-agent/internal/metrics"
	"adte.com/adte/creative-agent/internal/middleware"
	"adte.com/adte/creative-agent/internal/server"
	"adte.com/adte/creative-agent/internal/storage"
)

const (
	maxBodyBytes  = 5 << 20
	purgeInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and MCP service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfig()
	if err != nil {
		logs := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logs.Error("failed to load configuration", "error", err)
		return err
	}

	// stdout belongs to the protocol when MCP runs over stdio
	var logOut io.Writer = os.Stdout
	if cfg.MCP.Enabled && cfg.MCP.Transport == "stdio" {
		logOut = os.Stderr
	}
	logger := newLogger(cfg.Log.Level, logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := format.NewStandardRegistry(cfg.AgentURL)
	if err != nil {
		logger.Error("failed to build format registry", "error", err)
		return err
	}

	store, sqliteStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open preview storage", "backend", cfg.Storage.Backend, "error", err)
		return err
	}
	if sqliteStore != nil {
		defer sqliteStore.Close()
	}

	generator := generate.NewOpenAIGenerator(*cfg.Generation)

	// Initialize server with shared business logic
	srv := &server.Server{
		Registry:    registry,
		Store:       store,
		Generator:   generator,
		BrandImages: generate.NewHTTPImageFetcher(),
		Metrics:     metrics.New(),
		Logger:      logger,
		AgentURL:    cfg.AgentURL,
		AgentName:   format.DefaultAgentName,
		PreviewTTL:  server.DefaultPreviewTTL,
	}
	if generator.ImagesEnabled() {
		srv.Images = generator
	}
	if cfg.Validation.CheckRemoteMIME {
		srv.MIMEChecker = asset.NewHTTPMIMEChecker()
	}

	mcpHandler := mcpHandlers.NewMCPHandler(srv)
	if cfg.MCP.Enabled {
		startMCPServer(ctx, mcpHandler, logger, cfg.MCP.Transport)
	}

	var previews httpHandlers.PreviewSource
	if sqliteStore != nil {
		previews = sqliteStore
		srv.InteractiveBaseURL = cfg.PublicBaseURL
		go purgePreviews(ctx, sqliteStore, srv.PreviewTTL, logger)
	}

	return startHTTPServer(ctx, srv, previews, mcpHandler, logger, cfg)
}

// openStore returns the configured preview store. The SQLite store is also
// returned on its own so the agent can serve and purge its documents.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, *storage.SQLiteStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		s3Store, err := storage.NewS3Store(cfg.Storage.S3)
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	case config.StorageSQLite:
		sqliteStore, err := storage.OpenSQLite(ctx, cfg.Storage.SQLiteDSN, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return sqliteStore, sqliteStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func purgePreviews(ctx context.Context, s *storage.SQLiteStore, ttl time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeBefore(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Error("purge expired previews failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired previews", "count", n)
			}
		}
	}
}

func startMCPServer(ctx context.Context, mcpHandler *mcpHandlers.MCPHandler, logger *slog.Logger, transport string) {
	mcpServer := mcpHandler.NewServer()

	go func() {
		logger.Info("Starting MCP server", "transport", transport)

		var mcpTransport mcpSdk.Transport
		switch transport {
		case "stdio":
			mcpTransport = &mcpSdk.StdioTransport{}
		default:
			logger.Error("unsupported MCP transport", "transport", transport)
			return
		}

		if err := mcpServer.Run(ctx, mcpTransport); err != nil {
			logger.Error("MCP server error", "error", err)
		}
	}()
}

// publicPaths skip authentication failures. Only build_creative needs
// credentials; everything else is public but still picks up the caller's
// identity when one is sent.
var publicPaths = []string{
	"/",
	"/health",
	"/metrics",
	"/mcp",
	"/formats",
	"/formats/",
	"/previews/",
	"/preview/",
	"/list_creative_formats",
	"/preview_creative",
	"/validate_creative",
}

// newRequestHandler wraps the router in the middleware chain.
func newRequestHandler(srv *server.Server, previews httpHandlers.PreviewSource, mcpHandler *mcpHandlers.MCPHandler, logger *slog.Logger, cfg *config.Config) http.Handler {
	apiKeyStore := auth.InitializeAPIKeys(cfg.ApiKey)

	httpHandler := httpHandlers.NewHTTPHandler(srv, previews, logger)
	router := httpHandler.Routes(mcpHandler.HTTPHandler(), srv.Metrics.Handler())

	limiterStore := middleware.NewRateLimiterStore(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, 10*time.Minute)

	authMiddleware := middleware.OptionalAuthMiddleware(
		middleware.UnifiedAuthMiddleware(cfg.JwtSecretKey, apiKeyStore, logger),
		publicPaths,
		logger,
	)

	return middleware.LoggingMiddleware(logger)(
		middleware.RecoverMiddleware(logger)(
			middleware.MetricsMiddleware(srv.Metrics)(
				middleware.CORSMiddleware(
					authMiddleware(
						middleware.RateLimitMiddleware(limiterStore)(
							middleware.LimitBodySize(maxBodyBytes)(router),
						),
					),
				),
			),
		),
	)
}

func startHTTPServer(ctx context.Context, srv *server.Server, previews httpHandlers.PreviewSource, mcpHandler *mcpHandlers.MCPHandler, logger *slog.Logger, cfg *config.Config) error {
	handler := newRequestHandler(srv, previews, mcpHandler, logger, cfg)

	httpServer := &http.Server{
		Addr:              cfg.HttpAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("Creative Agent service is running",
		"address", cfg.HttpAddress,
		"agent_url", cfg.AgentURL,
		"storage", cfg.Storage.Backend,
		"formats", srv.Registry.Len(),
		"mcp_endpoint", "/mcp",
		"mcp_transport", cfg.MCP.Transport)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown", "error", err)
		return err
	}
	return nil
}
