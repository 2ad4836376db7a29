package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chatrelay/llm"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const DefaultSystemPrompt = "You are a helpful assistant. Be concise."

// ConfigFileEnv names the env var that points at an explicit config file.
const ConfigFileEnv = "CHATRELAY_CONFIG"

// ConfigFileCandidates are looked up in the working directory, in order,
// when ConfigFileEnv is unset.
var ConfigFileCandidates = []string{"chatrelay.yml", "chatrelay.yaml", "chatrelay.toml", "chatrelay.json"}

type RateLimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

type OtelConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	// TraceDir receives daily trace files when no endpoint is set.
	TraceDir string `koanf:"trace_dir"`
}

// Config is the process configuration. It is loaded once at startup and
// passed by value; nothing mutates it afterwards.
type Config struct {
	AppEnv         string          `koanf:"app_env"`
	Host           string          `koanf:"host"`
	Port           int             `koanf:"port"`
	LogLevel       string          `koanf:"log_level"`
	LogDir         string          `koanf:"log_dir"`
	RedisURL       string          `koanf:"redis_url"`
	APIKey         string          `koanf:"api_key"`
	CORSOrigins    string          `koanf:"cors_origins"`
	LLMProvider    string          `koanf:"llm_provider"`
	LLMModel       string          `koanf:"llm_model"`
	SystemPrompt   string          `koanf:"system_prompt"`
	RequestTimeout time.Duration   `koanf:"request_timeout"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
	Otel           OtelConfig      `koanf:"otel"`

	OpenAI           llm.ProviderConfig `koanf:"openai"`
	Gemini           llm.ProviderConfig `koanf:"gemini"`
	Anthropic        llm.ProviderConfig `koanf:"anthropic"`
	OpenAICompatible llm.ProviderConfig `koanf:"openai_compatible"`

	// ConfigFile is the file the config was read from, if any.
	ConfigFile string `koanf:"-"`
}

// DefaultConfig returns the built-in defaults, the lowest precedence layer.
func DefaultConfig() Config {
	return Config{
		AppEnv:         "local",
		Host:           "0.0.0.0",
		Port:           defaultServerPort,
		LogLevel:       "info",
		RedisURL:       "redis://localhost:6379/0",
		CORSOrigins:    "http://localhost:3000",
		LLMProvider:    llm.ProviderOpenAI,
		SystemPrompt:   DefaultSystemPrompt,
		RequestTimeout: 5 * time.Minute,
		RateLimit: RateLimitConfig{
			Limit:  20,
			Window: 60 * time.Second,
		},
		Anthropic: llm.ProviderConfig{MaxTokens: 4096},
	}
}

// envKeys maps environment variables onto config keys. Variables not listed
// here are ignored.
var envKeys = map[string]string{
	"APP_ENV":                    "app_env",
	"BIND_HOST":                  "host",
	"PORT":                       "port",
	"LOG_LEVEL":                  "log_level",
	"LOG_DIR":                    "log_dir",
	"REDIS_URL":                  "redis_url",
	"API_KEY":                    "api_key",
	"CORS_ORIGINS":               "cors_origins",
	"LLM_PROVIDER":               "llm_provider",
	"LLM_MODEL":                  "llm_model",
	"SYSTEM_PROMPT":              "system_prompt",
	"REQUEST_TIMEOUT":            "request_timeout",
	"RATE_LIMIT":                 "rate_limit.limit",
	"RATE_LIMIT_WINDOW":          "rate_limit.window",
	"OTEL_ENABLED":               "otel.enabled",
	"OTEL_ENDPOINT":              "otel.endpoint",
	"OTEL_TRACE_DIR":             "otel.trace_dir",
	"OPENAI_API_KEY":             "openai.api_key",
	"OPENAI_BASE_URL":            "openai.base_url",
	"OPENAI_MODEL":               "openai.model",
	"GOOGLE_API_KEY":             "gemini.api_key",
	"GEMINI_API_KEY":             "gemini.api_key",
	"GEMINI_BASE_URL":            "gemini.base_url",
	"GEMINI_MODEL":               "gemini.model",
	"ANTHROPIC_API_KEY":          "anthropic.api_key",
	"ANTHROPIC_BASE_URL":         "anthropic.base_url",
	"ANTHROPIC_MODEL":            "anthropic.model",
	"ANTHROPIC_MAX_TOKENS":       "anthropic.max_tokens",
	"OPENAI_COMPATIBLE_API_KEY":  "openai_compatible.api_key",
	"OPENAI_COMPATIBLE_BASE_URL": "openai_compatible.base_url",
	"OPENAI_COMPATIBLE_MODEL":    "openai_compatible.model",
}

var durationKeys = map[string]bool{
	"request_timeout":   true,
	"rate_limit.window": true,
}

// envCallback translates one environment variable for the koanf env
// provider. Bare integers for duration settings are read as seconds.
func envCallback(key, value string) (string, interface{}) {
	mapped, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	// GEMINI_API_KEY wins over the GOOGLE_API_KEY alias
	if key == "GOOGLE_API_KEY" && os.Getenv("GEMINI_API_KEY") != "" {
		return "", nil
	}
	if durationKeys[mapped] && isDigits(value) {
		value += "s"
	}
	return mapped, value
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LoadConfig layers defaults, the discovered config file and the
// environment, in increasing precedence. The .env file, if any, must already
// have been loaded into the environment by the caller.
func LoadConfig(dir string) (Config, error) {
	config := DefaultConfig()
	k := koanf.New(".")

	configPath := os.Getenv(ConfigFileEnv)
	if configPath == "" {
		search := FindConfigFile(dir)
		if len(search.Found) > 1 {
			log.Warn().Strs("found", search.Found).Str("using", search.Chosen).Msg("multiple config files found")
		}
		configPath = search.Chosen
	}
	if configPath != "" {
		parser, err := ParserFor(configPath)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(configPath), parser); err != nil {
			return Config{}, fmt.Errorf("error loading config file %s: %w", configPath, err)
		}
		config.ConfigFile = configPath
	}

	if err := k.Load(env.ProviderWithValue("", ".", envCallback), nil); err != nil {
		return Config{}, fmt.Errorf("error loading environment: %w", err)
	}

	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Validate ensures the Config is usable. Provider credentials are checked
// later, when the configured provider is resolved.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	if strings.TrimSpace(c.LLMProvider) == "" {
		return fmt.Errorf("llm_provider is required")
	}
	if c.Anthropic.MaxTokens < 0 {
		return fmt.Errorf("anthropic.max_tokens must not be negative, got %d", c.Anthropic.MaxTokens)
	}
	return nil
}

// IsLocal reports whether the process runs in the local development
// environment.
func (c Config) IsLocal() bool {
	return c.AppEnv == "" || c.AppEnv == "local"
}

// ProviderConfigs returns the per-provider settings handed to llm.NewFactory.
// LLM_MODEL applies to whichever provider is configured unless that provider
// sets its own model.
func (c Config) ProviderConfigs() map[string]llm.ProviderConfig {
	configs := map[string]llm.ProviderConfig{
		llm.ProviderOpenAI:           c.OpenAI,
		llm.ProviderGemini:           c.Gemini,
		llm.ProviderAnthropic:        c.Anthropic,
		llm.ProviderOpenAICompatible: c.OpenAICompatible,
	}

	active := llm.NormalizeKey(c.LLMProvider)
	if active == "google" {
		active = llm.ProviderGemini
	}
	for key, pc := range configs {
		pc.SystemPrompt = c.SystemPrompt
		if key == active && pc.Model == "" {
			pc.Model = c.LLMModel
		}
		configs[key] = pc
	}
	return configs
}
