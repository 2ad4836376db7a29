package main

import (
	"context"
	"fmt"
	"os"

	"chatrelay/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	log.Logger = log.Level(zerolog.InfoLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load .env file if any
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Warning: failed to load .env file")
		}
	}

	if err := NewRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "chatrelay",
		Usage:   "Relay chat turns to an LLM provider as server-sent events",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"C"},
				Usage:   "Directory searched for chatrelay.{yml,yaml,toml,json}",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewCheckCommand(),
			NewProvidersCommand(),
		},
	}
}

// loadConfig reads the configuration relative to --dir, or the working
// directory when it is not given.
func loadConfig(cmd *cli.Command) (common.Config, error) {
	dir := cmd.Root().String("dir")
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return common.Config{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = cwd
	}
	return common.LoadConfig(dir)
}
