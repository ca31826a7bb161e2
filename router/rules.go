package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tailored-agentic-units/chatstream/core/protocol"
)

// Rule sends matching turns to a lookup source. A turn matches when it
// contains any keyword (case-insensitive) or matches Pattern.
type Rule struct {
	Name     string   `json:"name" yaml:"name"`
	Source   string   `json:"source" yaml:"source"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

type compiledRule struct {
	Rule
	keywords []string
	pattern  *regexp.Regexp
}

func (r compiledRule) match(lower, original string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return r.pattern != nil && r.pattern.MatchString(original)
}

// Rules is a pure, table-driven Router. Rules are tried in order and the
// first match wins; no match routes directly.
type Rules struct {
	rules []compiledRule
}

// NewRules compiles rules into a Router.
func NewRules(rules ...Rule) (*Rules, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for _, rule := range rules {
		if rule.Source == "" {
			return nil, fmt.Errorf("%w: %s: missing source", ErrInvalidRule, rule.Name)
		}
		if len(rule.Keywords) == 0 && rule.Pattern == "" {
			return nil, fmt.Errorf("%w: %s: no keywords or pattern", ErrInvalidRule, rule.Name)
		}

		c := compiledRule{Rule: rule}
		for _, kw := range rule.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				c.keywords = append(c.keywords, kw)
			}
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rule.Name, err)
			}
			c.pattern = re
		}
		compiled = append(compiled, c)
	}

	return &Rules{rules: compiled}, nil
}

// DefaultRules routes reporting and counting questions to the "sql" source.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "reporting",
			Source: "sql",
			Keywords: []string{
				"how many", "count of", "number of", "list all", "total",
				"report", "statistics",
				"多少", "數量", "数量", "統計", "统计", "報表", "报表", "查詢", "查询",
			},
		},
		{
			Name:    "explicit-sql",
			Source:  "sql",
			Pattern: `(?i)^\s*select\s`,
		},
	}
}

func (r *Rules) Route(_ context.Context, text string, _ []protocol.Turn) (Decision, error) {
	lower := strings.ToLower(text)

	for _, rule := range r.rules {
		if rule.match(lower, text) {
			return Lookup(rule.Source, strings.TrimSpace(text), "rule "+rule.Name), nil
		}
	}

	return Direct("no rule matched"), nil
}
