package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule allows Limit hits per Window. A zero Limit disables limiting.
type Rule struct {
	Limit  int64         `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Disabled reports whether the rule lets everything through.
func (r Rule) Disabled() bool {
	return r.Limit <= 0
}

// Rules maps endpoint names to rules, with Default for unlisted endpoints.
//
//	default:
//	  limit: 120
//	  window: 1m
//	endpoints:
//	  create-payout:
//	    limit: 5
//	    window: 1m
type Rules struct {
	Default   Rule            `yaml:"default"`
	Endpoints map[string]Rule `yaml:"endpoints"`
}

// DefaultRules are used when no rule file is configured.
func DefaultRules() Rules {
	return Rules{
		Default: Rule{Limit: 120, Window: time.Minute},
		Endpoints: map[string]Rule{
			"login":          {Limit: 10, Window: time.Minute},
			"assign-role":    {Limit: 10, Window: time.Minute},
			"create-payout":  {Limit: 5, Window: time.Minute},
			"admin-user":     {Limit: 20, Window: time.Minute},
			"invite-accept":  {Limit: 10, Window: time.Minute},
			"invoice-access": {Limit: 60, Window: time.Minute},
		},
	}
}

// ApplyDefaults fills missing windows.
func (r *Rules) ApplyDefaults() {
	if r.Default.Window <= 0 {
		r.Default.Window = time.Minute
	}
	for name, rule := range r.Endpoints {
		if rule.Window <= 0 {
			rule.Window = r.Default.Window
			r.Endpoints[name] = rule
		}
	}
}

// For returns the rule for endpoint.
func (r Rules) For(endpoint string) Rule {
	if rule, ok := r.Endpoints[endpoint]; ok {
		return rule
	}
	return r.Default
}

// LoadRules reads a YAML rule file. Endpoints missing from the file keep
// their built-in rule.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rate limit rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rules layered over DefaultRules.
func ParseRules(data []byte) (Rules, error) {
	var parsed Rules
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rate limit rules: %w", err)
	}

	rules := DefaultRules()
	if parsed.Default.Limit != 0 || parsed.Default.Window != 0 {
		rules.Default = parsed.Default
	}
	for name, rule := range parsed.Endpoints {
		if rule.Limit < 0 {
			return Rules{}, fmt.Errorf("endpoint %s: limit must not be negative", name)
		}
		rules.Endpoints[name] = rule
	}
	rules.ApplyDefaults()

	return rules, nil
}
