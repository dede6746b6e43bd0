package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/server"
)

const startupReadyTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (POST /analyze, GET /health)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", config.DefaultPort, "HTTP server port")
	_ = viper.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.WarnIfSampleKey()

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	// The recognizer must be usable before we accept traffic; text is never
	// forwarded without sanitization.
	readyCtx, cancel := context.WithTimeout(ctx, startupReadyTimeout)
	err = pipe.Ready(readyCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("recognizer %s not ready: %w", pipe.RecognizerName(), err)
	}

	srv := server.NewServer(pipe,
		server.WithModel(cfg.Provider, cfg.Model),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithRateLimit(cfg.RateLimitRPM, cfg.RateLimitClientRPM),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("recognizer", pipe.RecognizerName()).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("cloak_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
