package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	config "github.com/avatarctic/cloud-storage-provider/configs"
	"github.com/avatarctic/cloud-storage-provider/internal/bootstrap"
)

type rootFlags struct {
	verbose bool
}

// appLoader wires the components a command needs. Tests replace it.
type appLoader func(ctx context.Context, logger *logrus.Logger) (*bootstrap.App, error)

func loadApp(ctx context.Context, logger *logrus.Logger) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return bootstrap.Build(ctx, cfg, logger)
}

func newRootCmd(load appLoader) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "storagectl",
		Short:         "storagectl inspects the configured cloud storage providers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newHealthCmd(flags, load))
	cmd.AddCommand(newProvidersCmd(flags, load))

	return cmd
}

// newLogger writes to stderr so command output stays machine readable.
func newLogger(cmd *cobra.Command, flags *rootFlags) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if flags.verbose {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetOutput(io.Discard)
	}
	return logger
}
