package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/receivables-portal/internal/config"
	"github.com/garyjia/receivables-portal/internal/container"
	"github.com/garyjia/receivables-portal/pkg/utils"
)

const version = "1.0.0"

// app carries what PersistentPreRunE loaded for the subcommands
type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "portal",
		Short:         "Receivables securitization portal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (defaults and environment only when empty)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newTermsCmd(a),
		newBillsCmd(a),
		newUsersCmd(a),
		newTokenCmd(a),
	)
	return root
}

// load reads the dotenv file, the configuration and builds the logger
func (a *app) load() error {
	if a.envFile != "" {
		if err := gotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

// withContainer starts a container without background workers, runs fn and closes it
func (a *app) withContainer(ctx context.Context, fn func(ctx context.Context, c *container.Container) error) error {
	c, err := container.NewContainer(a.cfg, a.logger, container.WithoutWorkers())
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}()
	return fn(ctx, c)
}
