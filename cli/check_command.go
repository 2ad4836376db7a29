package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"chatrelay/api"
	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/ratelimit"

	"github.com/urfave/cli/v3"
)

const redisCheckTimeout = 3 * time.Second

var errCheckFailed = errors.New("pre-flight check failed")

func NewCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify configuration, provider credentials and Redis before serving",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "skip-redis",
				Usage: "Do not ping REDIS_URL",
			},
		},
		Action: handleCheckCommand,
	}
}

func handleCheckCommand(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer

	config, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(out, "FAIL config: %v\n", err)
		return errCheckFailed
	}
	source := config.ConfigFile
	if source == "" {
		source = "defaults and environment"
	}
	fmt.Fprintf(out, "ok   config: %s\n", source)

	ok := runCheck(out, "cors", func() (string, error) {
		origins, err := api.AllowedOriginsFromConfig(config)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d allowed origins", origins.Len()), nil
	})

	ok = runCheck(out, "provider", func() (string, error) {
		provider, err := llm.NewFactory(config.ProviderConfigs()).Resolve(config.LLMProvider)
		if err != nil {
			return "", err
		}
		return provider.Name(), nil
	}) && ok

	if !cmd.Bool("skip-redis") {
		ok = runCheck(out, "redis", func() (string, error) {
			return checkRedis(ctx, config)
		}) && ok
	}

	if config.APIKey == "" {
		fmt.Fprintln(out, "warn api key: API_KEY is not set, the chat API is unauthenticated")
	}

	if !ok {
		return errCheckFailed
	}
	fmt.Fprintln(out, "All checks passed")
	return nil
}

func runCheck(out io.Writer, name string, check func() (string, error)) bool {
	detail, err := check()
	if err != nil {
		fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
		return false
	}
	fmt.Fprintf(out, "ok   %s: %s\n", name, detail)
	return true
}

func checkRedis(ctx context.Context, config common.Config) (string, error) {
	if config.RedisURL == "" {
		return "disabled", nil
	}
	client, err := ratelimit.NewRedisClient(config.RedisURL)
	if err != nil {
		return "", err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, redisCheckTimeout)
	defer cancel()
	if err := ratelimit.CheckConnection(ctx, client); err != nil {
		return "", fmt.Errorf("ping %s: %w", client.Options().Addr, err)
	}
	return client.Options().Addr, nil
}
