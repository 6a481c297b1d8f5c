package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/receivables-portal/internal/container"
	httpapi "github.com/garyjia/receivables-portal/internal/interfaces/http"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox retry worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	a.logger.Info("Starting receivables portal",
		zap.String("version", version),
		zap.String("address", a.cfg.Server.Addr()))

	c, err := container.NewContainer(a.cfg, a.logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			a.logger.Error("Shutdown finished with errors", zap.Error(err))
		}
	}()

	services := c.Services()
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Addr:         a.cfg.Server.Addr(),
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		},
		httpapi.Dependencies{
			Engine:        c.Engine(),
			Queries:       services.Query,
			Notifications: services.Notification,
			Activity:      services.Activity,
			Exports:       services.Export,
			Health: func(ctx context.Context) (bool, interface{}) {
				h := c.Health(ctx)
				return h.Overall, h.Components
			},
		},
		httpapi.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL),
		zapAdapter{a.logger},
	)

	return server.Start(ctx)
}

// zapAdapter adapts zap to the HTTP package's key/value logger
type zapAdapter struct {
	logger *zap.Logger
}

func (z zapAdapter) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Infow(msg, keysAndValues...)
}

func (z zapAdapter) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Sugar().Errorw(msg, keysAndValues...)
}
