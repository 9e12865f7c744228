package amgproxy

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/config"
	"golang.org/x/sync/errgroup"
)

// Run parses args and the environment, then serves until SIGINT or SIGTERM.
func Run(args []string) error {
	options, err := config.Parse(args)
	if err != nil {
		return err
	}
	logger := NewLogger(options.LogLevel)
	service := New(options, logger)
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv, err := service.NewServer(ctx)
	if err != nil {
		return err
	}
	if !config.Enabled(options.DisableWarmup) {
		go service.Warm(ctx)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("address", srv.Addr).Str("grafana", options.GrafanaEndpoint).Msg("amg-mcp proxy listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(options.CloseTimeout))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// NewLogger returns a console logger on stderr at level; unknown levels mean info.
func NewLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).
		With().Timestamp().Logger()
}
