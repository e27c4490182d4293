package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pdf_unmark/api"
	"pdf_unmark/config"
	"pdf_unmark/logging"
	"pdf_unmark/pdf"
	"pdf_unmark/processor"
	"pdf_unmark/session"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides config and PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.Port = servePort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "pdf_unmark",
	})

	renderer, err := pdf.NewRenderer(cfg.Render.CacheEntries, logger)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	client := processor.NewClient(cfg.Processor.URL, cfg.Processor.Timeout, logger)
	sessions := session.NewManager(cfg.Session.MaxSessions, cfg.Session.IdleTTL, renderer, client, logger)
	defer sessions.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logging.GinLogger(logger), gin.Recovery())

	handler := api.NewHandler(&api.Config{
		MaxFileSize:    cfg.Upload.MaxFileSize,
		DefaultWidth:   cfg.Render.DefaultWidth,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, sessions, logger)
	api.SetupRoutes(r, handler)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", srv.Addr).
			Int64("max_file_size", cfg.Upload.MaxFileSize).
			Str("processor_url", cfg.Processor.URL).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server exited gracefully")
	return nil
}
