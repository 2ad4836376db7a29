package llm

import (
	"slices"
	"strings"
	"sync"
)

// Constructor builds a provider bound to the given configuration. It returns
// a config error when a required credential is missing.
type Constructor func(config ProviderConfig) (Provider, error)

// Factory maps a provider key to a concrete Provider. It is the only place
// that branches on provider identity.
type Factory struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	configs      map[string]ProviderConfig
	instances    map[string]Provider
}

// NewFactory returns a factory with the built-in providers registered.
// configs is keyed by provider key; aliases share their target's config.
func NewFactory(configs map[string]ProviderConfig) *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
		configs:      make(map[string]ProviderConfig, len(configs)),
		instances:    make(map[string]Provider),
	}
	for key, config := range configs {
		f.configs[NormalizeKey(key)] = config
	}

	f.Register(ProviderOpenAI, NewOpenAIResponsesProvider)
	f.Register(ProviderGemini, NewGoogleProvider)
	f.Register(ProviderAnthropic, NewAnthropicProvider)
	f.Register(ProviderOpenAICompatible, NewOpenAICompatibleProvider)
	f.registerAlias("google", ProviderGemini)
	return f
}

const (
	ProviderOpenAI           = "openai"
	ProviderGemini           = "gemini"
	ProviderAnthropic        = "anthropic"
	ProviderOpenAICompatible = "openai_compatible"
)

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register adds or replaces a provider constructor.
func (f *Factory) Register(name string, constructor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := NormalizeKey(name)
	f.constructors[key] = constructor
	delete(f.instances, key)
}

func (f *Factory) registerAlias(alias, target string) {
	f.mu.Lock()
	constructor := f.constructors[target]
	f.mu.Unlock()
	f.Register(alias, func(config ProviderConfig) (Provider, error) {
		if config == (ProviderConfig{}) {
			config = f.configFor(target)
		}
		return constructor(config)
	})
}

func (f *Factory) configFor(key string) ProviderConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[key]
}

// Keys returns the registered provider keys, sorted.
func (f *Factory) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.constructors))
	for key := range f.constructors {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Resolve returns the provider registered under key. Unknown keys fail with
// a config error; there is no default fallback. Instances are cached and
// shared read-only between requests.
func (f *Factory) Resolve(key string) (Provider, error) {
	normalized := NormalizeKey(key)

	f.mu.Lock()
	if provider, ok := f.instances[normalized]; ok {
		f.mu.Unlock()
		return provider, nil
	}
	constructor, ok := f.constructors[normalized]
	config := f.configs[normalized]
	f.mu.Unlock()

	if !ok {
		if normalized == "" {
			return nil, configError("LLM_PROVIDER is not set. Supported: %s", strings.Join(f.Keys(), ", "))
		}
		return nil, configError("unknown LLM_PROVIDER=%q. Supported: %s", key, strings.Join(f.Keys(), ", "))
	}

	provider, err := constructor(config)
	if err != nil {
		if llmErr, ok := AsError(err); ok {
			return nil, llmErr
		}
		return nil, &Error{Provider: normalized, Kind: ErrKindConfig, Message: err.Error(), Cause: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.instances[normalized]; ok {
		return existing, nil
	}
	f.instances[normalized] = provider
	return provider, nil
}
