package generation

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/tailored-agentic-units/chatstream/core/config"
	"github.com/tailored-agentic-units/chatstream/lookup"
	"github.com/tailored-agentic-units/chatstream/observability"
)

// Providers.
const (
	ProviderEcho   = "echo"
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Environment variables consulted for secrets left empty in config.
const (
	EnvAPIKey          = "CHATSTREAM_API_KEY"
	EnvClientSecret    = "CHATSTREAM_CLIENT_SECRET"
	EnvSubscriptionKey = "CHATSTREAM_SUBSCRIPTION_KEY"
)

// OAuthConfig holds client-credentials settings for the HTTP provider.
type OAuthConfig struct {
	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// Config configures the generation adapter and its model provider.
type Config struct {
	Provider        string          `json:"provider" yaml:"provider"`
	Model           string          `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL         string          `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey          string          `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	SubscriptionKey string          `json:"subscription_key,omitempty" yaml:"subscription_key,omitempty"`
	OAuth           OAuthConfig     `json:"oauth" yaml:"oauth"`
	Retries         int             `json:"retries,omitempty" yaml:"retries,omitempty"`
	Timeout         config.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Splitter        string          `json:"splitter,omitempty" yaml:"splitter,omitempty"`
	SystemPrompt    string          `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Options         Options         `json:"options" yaml:"options"`
}

// DefaultConfig returns the echo provider with the sampling defaults of the
// HTTP generate backend.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderEcho,
		Model:    "gpt-4.1",
		Retries:  2,
		Timeout:  config.Duration(60 * time.Second),
		Splitter: SplitToken,
		SystemPrompt: "You are a helpful assistant. Answer concisely. When data lookup " +
			"results are provided, base your answer on them.",
		Options: Options{
			Temperature: 0.2,
			TopP:        0.8,
			MaxTokens:   2000,
			Stop:        []string{"User:", "AI:"},
		},
	}
}

// Merge overlays non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.SubscriptionKey != "" {
		c.SubscriptionKey = source.SubscriptionKey
	}
	if source.OAuth.TokenURL != "" {
		c.OAuth.TokenURL = source.OAuth.TokenURL
	}
	if source.OAuth.ClientID != "" {
		c.OAuth.ClientID = source.OAuth.ClientID
	}
	if source.OAuth.ClientSecret != "" {
		c.OAuth.ClientSecret = source.OAuth.ClientSecret
	}
	if len(source.OAuth.Scopes) > 0 {
		c.OAuth.Scopes = source.OAuth.Scopes
	}
	if source.Retries > 0 {
		c.Retries = source.Retries
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.Splitter != "" {
		c.Splitter = source.Splitter
	}
	if source.SystemPrompt != "" {
		c.SystemPrompt = source.SystemPrompt
	}
	if source.Options.Temperature > 0 {
		c.Options.Temperature = source.Options.Temperature
	}
	if source.Options.TopP > 0 {
		c.Options.TopP = source.Options.TopP
	}
	if source.Options.MaxTokens > 0 {
		c.Options.MaxTokens = source.Options.MaxTokens
	}
	if len(source.Options.Stop) > 0 {
		c.Options.Stop = source.Options.Stop
	}
}

// NewModel builds the configured provider. Empty secrets fall back to the
// CHATSTREAM_* environment variables.
func NewModel(cfg *Config) (Model, error) {
	switch cfg.Provider {
	case "", ProviderEcho:
		return Echo{}, nil
	case ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv(EnvAPIKey))
		return NewOpenAI(key, cfg.BaseURL, cfg.Model, cfg.Options), nil
	case ProviderHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: base_url", ErrMissingParameter)
		}
		opts := []HTTPOption{
			WithSubscriptionKey(firstNonEmpty(cfg.SubscriptionKey, os.Getenv(EnvSubscriptionKey))),
			WithRetries(uint(cfg.Retries), 0),
			WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Std()}),
		}
		if cfg.OAuth.TokenURL != "" {
			opts = append(opts, WithCredentials(&clientcredentials.Config{
				ClientID:     cfg.OAuth.ClientID,
				ClientSecret: firstNonEmpty(cfg.OAuth.ClientSecret, os.Getenv(EnvClientSecret)),
				TokenURL:     cfg.OAuth.TokenURL,
				Scopes:       cfg.OAuth.Scopes,
			}))
		}
		return NewHTTPModel(cfg.BaseURL, cfg.Model, cfg.Options, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// New assembles the adapter: a DirectAnswer over m and, when resolver is
// non-nil, a LookupThenAnswer in front of it.
func New(cfg *Config, m Model, resolver *lookup.Resolver, observer observability.Observer) (*Adapter, error) {
	splitter, err := ParseSplitter(cfg.Splitter)
	if err != nil {
		return nil, err
	}

	direct := NewDirectAnswer(m,
		WithSplitter(splitter),
		WithSystemPrompt(cfg.SystemPrompt),
		WithDirectObserver(observer),
	)

	var lookupPath Path
	if resolver != nil {
		lookupPath = NewLookupThenAnswer(resolver, direct, observer)
	}
	return NewAdapter(direct, lookupPath), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
