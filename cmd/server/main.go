// IntelliForm - government form assistant orchestration server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ashureev/intelliform/internal/api"
	"github.com/ashureev/intelliform/internal/backend"
	"github.com/ashureev/intelliform/internal/catalog"
	"github.com/ashureev/intelliform/internal/config"
	"github.com/ashureev/intelliform/internal/health"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/middleware"
	"github.com/ashureev/intelliform/internal/pacing"
	"github.com/ashureev/intelliform/internal/session"
	"github.com/ashureev/intelliform/internal/store"
	"github.com/ashureev/intelliform/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "backend", cfg.Backend.URL, "dev", cfg.IsDevelopment())

	forms := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return err
		}
		forms = loaded
		slog.Info("Form catalog loaded", "path", cfg.CatalogPath, "forms", forms.Names())
	}

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Archiving is optional; session state never depends on it.
	var archive store.Archive
	var sessionArchive session.Archive
	if cfg.Archive.Enabled {
		db, err := store.NewSQLite(cfg.Archive.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("Failed to close archive", "error", closeErr)
			}
		}()
		if err := db.Ping(ctx); err != nil {
			return err
		}
		archive, sessionArchive = db, db
		store.StartRetentionWorker(ctx, db, cfg.Archive.Retention)
		slog.Info("Archive connected", "path", cfg.Archive.DBPath, "retention", cfg.Archive.Retention)
	}

	views := session.NewManager(session.ManagerConfig{
		Backend:        client,
		Catalog:        forms,
		Archive:        sessionArchive,
		HealthInterval: cfg.Backend.HealthInterval,
		IdleTTL:        cfg.Sessions.IdleTTL,
		Logger:         logger,
	})
	defer views.Shutdown()
	views.StartSweeper(ctx)

	reporter := health.NewReporter(logger)
	defer reporter.Shutdown()

	limiter := middleware.NewRateLimiter(cfg.Limits.Requests, cfg.Limits.Window)
	streams := stream.NewRegistry()
	defer streams.CloseAll()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	api.NewHealthHandler(archive, reporter, views).RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(cfg.Limits.MaxBodySize))
		r.Use(middleware.RateLimit(limiter, rateLimitKey))
		api.NewSessionHandler(api.NewHandler(views, archive, forms)).RegisterRoutes(r)
	})

	// WebSocket endpoint.
	ws := stream.NewHandler(views, pacing.New(cfg.Sessions.ThinkPause), streams, cfg.FrontendURL, cfg.IsDevelopment(), logger)
	r.Get("/ws/sessions/{viewID}", ws.ServeHTTP)

	// WebSocket streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer()
		reporter.Register(grpcServer)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})

	g.Go(func() error {
		probe := reporter.Track(func(ctx context.Context) error {
			_, err := client.Health(ctx)
			return err
		})
		health.NewPoller(cfg.Backend.HealthInterval, 0, logger).Run(gctx, "backend", probe)
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			slog.Info("gRPC health listening", "addr", grpcLis.Addr().String())
			return grpcServer.Serve(grpcLis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		streams.CloseAll()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// rateLimitKey limits per anonymous client, falling back to the caller's IP.
func rateLimitKey(r *http.Request) string {
	if id := identity.ClientIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}
