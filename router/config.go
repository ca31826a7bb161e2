package router

import "fmt"

// Routing strategies.
const (
	StrategyRules    = "rules"
	StrategyModel    = "model"
	StrategyFallback = "fallback"
)

// Config selects and configures the turn router.
type Config struct {
	Strategy string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Rules    []Rule   `json:"rules,omitempty" yaml:"rules,omitempty"`
	Sources  []string `json:"sources,omitempty" yaml:"sources,omitempty"`
	History  int      `json:"history,omitempty" yaml:"history,omitempty"`
}

// DefaultConfig returns the rule-based router with DefaultRules.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyRules,
		Rules:    DefaultRules(),
		Sources:  []string{"sql"},
		History:  4,
	}
}

// Merge applies non-zero values from source into c. Rules and sources are
// replaced as a whole.
func (c *Config) Merge(source *Config) {
	if source.Strategy != "" {
		c.Strategy = source.Strategy
	}
	if len(source.Rules) > 0 {
		c.Rules = source.Rules
	}
	if len(source.Sources) > 0 {
		c.Sources = source.Sources
	}
	if source.History > 0 {
		c.History = source.History
	}
}

// New builds the configured Router. The completer is required by the model
// and fallback strategies.
func New(cfg *Config, completer Completer) (Router, error) {
	switch cfg.Strategy {
	case "", StrategyRules:
		return NewRules(cfg.Rules...)
	case StrategyModel, StrategyFallback:
		if completer == nil {
			return nil, fmt.Errorf("%w: %s requires a model", ErrUnknownStrategy, cfg.Strategy)
		}
		model := NewModel(completer, WithSources(cfg.Sources...), WithHistory(cfg.History))
		if cfg.Strategy == StrategyModel {
			return model, nil
		}
		rules, err := NewRules(cfg.Rules...)
		if err != nil {
			return nil, err
		}
		return Fallback{Primary: model, Secondary: rules}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, cfg.Strategy)
	}
}
