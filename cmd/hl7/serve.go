package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7/internal/config"
	"github.com/ehr/hl7/internal/platform/archive"
	"github.com/ehr/hl7/internal/platform/hl7api"
	"github.com/ehr/hl7/internal/platform/middleware"
	"github.com/ehr/hl7/internal/platform/mllp"
	"github.com/ehr/hl7/pkg/hl7"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MLLP listener and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ackOpts := &hl7.ACKOptions{Application: cfg.AckApplication, Facility: cfg.AckFacility}
	parseOpts := []hl7.Option{
		hl7.WithEncoding(cfg.HL7Encoding),
		hl7.WithDiagnostics(hl7.LogDiagnostics(logger)),
	}

	e := newEcho(cfg, logger, ackOpts, parseOpts)
	handler := mllp.DefaultHandler(ackOpts)

	// Archive
	if cfg.ArchiveEnabled() {
		pool, err := archive.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := archive.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		handler = store.Handler(handler, ackOpts, logger)
		e.GET("/health/db", archive.HealthHandler(pool))
		logger.Info().Msg("message archive enabled")
	}

	// MLLP listener
	if cfg.MLLPAddr != "" {
		srv := mllp.NewServer(mllp.Config{
			Addr:           cfg.MLLPAddr,
			MaxMessageSize: cfg.MLLPMaxMessageSize,
			ReadTimeout:    cfg.MLLPReadTimeout,
			ParseOptions:   parseOpts,
		}, handler, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	// HTTP API
	errCh := make(chan error, 1)
	if cfg.HTTPPort != "" {
		go func() {
			addr := ":" + cfg.HTTPPort
			logger.Info().Str("addr", addr).Msg("starting HTTP server")
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("HTTP server error")
		return err
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the HTTP surface: global middleware, health check and the
// HL7 endpoints under /api/v1.
func newEcho(cfg *config.Config, logger zerolog.Logger, ackOpts *hl7.ACKOptions, parseOpts []hl7.Option) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BatchBodyLimit, "/api/v1/hl7v2/parse"))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	hl7api.NewHandler(ackOpts, parseOpts...).RegisterRoutes(e.Group("/api/v1"))
	return e
}
