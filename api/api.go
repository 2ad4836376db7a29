package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/ratelimit"
	"chatrelay/relay"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const ServiceName = "chatrelay"

type Controller struct {
	config common.Config
	relay  *relay.Relay
	gate   ratelimit.Gate
}

// NewController resolves the configured provider once so that a missing key
// or credential fails startup rather than the first request.
func NewController(config common.Config, resolver relay.Resolver, gate ratelimit.Gate) (Controller, error) {
	provider, err := resolver.Resolve(config.LLMProvider)
	if err != nil {
		return Controller{}, fmt.Errorf("failed to resolve llm provider %q: %w", config.LLMProvider, err)
	}
	log.Info().Str("provider", provider.Name()).Msg("llm provider resolved")

	if gate == nil {
		gate = ratelimit.AllowAll
	}
	return Controller{
		config: config,
		relay:  relay.NewRelay(resolver, config.LLMProvider, config.RequestTimeout),
		gate:   gate,
	}, nil
}

func (ctrl *Controller) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func DefineRoutes(ctrl Controller, allowedOrigins *AllowedOrigins) *gin.Engine {
	r := gin.New()
	r.ForwardedByClientIP = true
	r.SetTrustedProxies(nil)

	r.Use(
		gin.Recovery(),
		RequestIdMiddleware(),
		AccessLogMiddleware(),
		otelgin.Middleware(ServiceName),
		CORSMiddleware(allowedOrigins),
	)

	r.GET("/health", ctrl.HealthHandler)

	apiRoutes := r.Group("/api")
	apiRoutes.Use(APIKeyMiddleware(ctrl.config.APIKey))
	apiRoutes.POST("/chat/stream", RateLimitMiddleware(ctrl.gate, chatStreamScope), ctrl.ChatStreamHandler)

	return r
}

// RunServer starts serving in the background. Callers stop it with
// Shutdown.
func RunServer(config common.Config, ctrl Controller) (*http.Server, error) {
	gin.SetMode(gin.ReleaseMode)
	allowedOrigins, err := AllowedOriginsFromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid CORS_ORIGINS: %w", err)
	}
	if config.APIKey == "" {
		log.Warn().Msg("API_KEY is not set, the chat API is open to anyone who can reach it")
	}

	router := DefineRoutes(ctrl, allowedOrigins)
	srv := &http.Server{
		Addr:              config.ListenAddr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("provider", llm.NormalizeKey(config.LLMProvider)).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	return srv, nil
}
