package dispatch

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Rules lists the trigger keywords for each tier. Keywords match whole words
// (or whole phrases) case-insensitively.
type Rules struct {
	High   []string `yaml:"high,omitempty" json:"high,omitempty"`
	Medium []string `yaml:"medium,omitempty" json:"medium,omitempty"`
	Low    []string `yaml:"low,omitempty" json:"low,omitempty"`
}

// DefaultRules returns the built-in keyword tables.
func DefaultRules() Rules {
	return Rules{
		High: []string{
			"architecture", "architect", "design", "critical", "security",
			"vulnerability", "audit", "migration", "migrate", "refactor",
			"distributed", "concurrency", "performance", "optimize", "strategy",
			"complex", "production", "incident",
		},
		Medium: []string{
			"implement", "feature", "build", "create", "write", "update",
			"fix", "bug", "debug", "test", "review", "analyze", "integrate",
			"validate", "install", "configure",
		},
		Low: []string{
			"quick", "simple", "typo", "rename", "format", "lint", "list",
			"search", "find", "lookup", "read", "summarize", "docs", "comment",
			"status", "check",
		},
	}
}

// Merge appends extra keywords to each table, skipping duplicates.
func (r Rules) Merge(extra Rules) Rules {
	return Rules{
		High:   mergeKeywords(r.High, extra.High),
		Medium: mergeKeywords(r.Medium, extra.Medium),
		Low:    mergeKeywords(r.Low, extra.Low),
	}
}

func mergeKeywords(base, adds []string) []string {
	out := make([]string, 0, len(base)+len(adds))
	seen := make(map[string]struct{}, len(base)+len(adds))
	for _, list := range [][]string{base, adds} {
		for _, kw := range list {
			key := strings.ToLower(strings.TrimSpace(kw))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

type keywordMatcher struct {
	keyword string
	pattern *regexp.Regexp
}

type tierRule struct {
	tier     Tier
	matchers []keywordMatcher
}

// Classifier maps free-text task descriptions to tiers.
type Classifier struct {
	rules []tierRule
}

// Decision explains a classification.
type Decision struct {
	Tier Tier
	// Keyword is the trigger that decided the tier; empty when defaulted.
	Keyword   string
	Defaulted bool
}

// Savings summarises the cost difference between the recommended tier and a
// baseline tier for one description.
type Savings struct {
	RecommendedTier Tier    `json:"recommended_tier"`
	RecommendedCost float64 `json:"recommended_cost"`
	BaselineCost    float64 `json:"baseline_cost"`
	SavingsPercent  int     `json:"savings_percent"`
	ShouldSwitch    bool    `json:"should_switch"`
}

// NewClassifier compiles the keyword tables.
func NewClassifier(rules Rules) (*Classifier, error) {
	ordered := []struct {
		tier     Tier
		keywords []string
	}{
		{TierHigh, rules.High},
		{TierMedium, rules.Medium},
		{TierLow, rules.Low},
	}
	c := &Classifier{rules: make([]tierRule, 0, len(ordered))}
	for _, entry := range ordered {
		rule := tierRule{tier: entry.tier}
		for idx, kw := range entry.keywords {
			trimmed := strings.TrimSpace(kw)
			if trimmed == "" {
				return nil, fmt.Errorf("dispatch: %s keyword[%d] is empty", entry.tier, idx)
			}
			pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(trimmed) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("dispatch: compile %s keyword %q: %w", entry.tier, trimmed, err)
			}
			rule.matchers = append(rule.matchers, keywordMatcher{keyword: strings.ToLower(trimmed), pattern: pattern})
		}
		c.rules = append(c.rules, rule)
	}
	return c, nil
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the tier for a description.
func (c *Classifier) Classify(description string) (Tier, error) {
	decision, err := c.Explain(description)
	if err != nil {
		return "", err
	}
	return decision.Tier, nil
}

// Explain classifies a description and reports the deciding keyword.
func (c *Classifier) Explain(description string) (Decision, error) {
	if strings.TrimSpace(description) == "" {
		return Decision{}, fmt.Errorf("%w: description is empty", ErrInvalidInput)
	}
	for _, rule := range c.rules {
		for _, m := range rule.matchers {
			if m.pattern.MatchString(description) {
				return Decision{Tier: rule.tier, Keyword: m.keyword}, nil
			}
		}
	}
	return Decision{Tier: TierMedium, Defaulted: true}, nil
}

// EstimateSavings compares the recommended tier for description against a
// baseline tier.
func (c *Classifier) EstimateSavings(description string, baseline Tier) (Savings, error) {
	baselineCost, err := CostOf(baseline)
	if err != nil {
		return Savings{}, err
	}
	tier, err := c.Classify(description)
	if err != nil {
		return Savings{}, err
	}
	cost, err := CostOf(tier)
	if err != nil {
		return Savings{}, err
	}
	percent := int(math.Round((baselineCost - cost) / baselineCost * 100))
	return Savings{
		RecommendedTier: tier,
		RecommendedCost: cost,
		BaselineCost:    baselineCost,
		SavingsPercent:  percent,
		ShouldSwitch:    percent > 0,
	}, nil
}
