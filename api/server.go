package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/ratelimit"
	"chatrelay/telemetry"

	"github.com/rs/zerolog/log"
)

// Server bundles the HTTP server with the resources started for it.
type Server struct {
	http     *http.Server
	closers  []func(context.Context) error
	Provider string
}

func (s *Server) Addr() string {
	return s.http.Addr
}

// Shutdown stops accepting connections, waits for in-flight streams until
// ctx is done, then flushes traces and releases Redis.
func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{s.http.Shutdown(ctx)}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// StartServer wires tracing, the provider factory and the rate gate from
// config and starts serving in the background. The configured provider is
// resolved before anything listens.
func StartServer(ctx context.Context, config common.Config) (*Server, error) {
	var closers []func(context.Context) error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](context.Background()); err != nil {
				log.Warn().Err(err).Msg("cleanup after failed start")
			}
		}
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, ServiceName, config.Otel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	closers = append(closers, shutdownTracer)

	gate, closeGate, err := ratelimit.NewGate(ctx, config.RedisURL, config.RateLimit.Limit, config.RateLimit.Window)
	if err != nil {
		cleanup()
		return nil, err
	}
	closers = append(closers, func(context.Context) error { return closeGate() })

	factory := llm.NewFactory(config.ProviderConfigs())
	ctrl, err := NewController(config, factory, gate)
	if err != nil {
		cleanup()
		return nil, err
	}

	srv, err := RunServer(config, ctrl)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &Server{
		http:     srv,
		closers:  closers,
		Provider: ctrl.relay.ProviderKey(),
	}, nil
}
