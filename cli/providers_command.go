package main

import (
	"context"
	"fmt"

	"chatrelay/llm"

	"github.com/urfave/cli/v3"
)

func NewProvidersCommand() *cli.Command {
	return &cli.Command{
		Name:   "providers",
		Usage:  "List the provider keys accepted by LLM_PROVIDER",
		Action: handleProvidersCommand,
	}
}

func handleProvidersCommand(ctx context.Context, cmd *cli.Command) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	active := llm.NormalizeKey(config.LLMProvider)

	out := cmd.Root().Writer
	for _, key := range llm.NewFactory(nil).Keys() {
		marker := " "
		if key == active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, key)
	}
	return nil
}
