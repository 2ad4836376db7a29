package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/api"
	"chatrelay/logger"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat relay API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen on this port instead of PORT",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "How long to wait for open streams on shutdown",
				Value: 30 * time.Second,
			},
		},
		Action: handleServeCommand,
	}
}

func handleServeCommand(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	config = config.WithPort(cmd.Int("port"))
	if err := config.Validate(); err != nil {
		return err
	}

	closeLog, err := logger.Init(logger.Options{
		Level:   config.LogLevel,
		Console: config.IsLocal(),
		Dir:     config.LogDir,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	srv, err := api.StartServer(ctx, config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.Duration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful API server shutdown failed")
		return err
	}
	log.Info().Msg("Shut down gracefully")
	return nil
}
