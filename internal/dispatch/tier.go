package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned when a description is empty.
	ErrInvalidInput = errors.New("dispatch: invalid input")
	// ErrUnknownTier is returned for cost lookups on unrecognised tiers.
	ErrUnknownTier = errors.New("dispatch: unknown tier")
)

// Tier is an opaque cost class assigned to a task.
type Tier string

const (
	// TierLow covers mechanical edits and lookups.
	TierLow Tier = "low"
	// TierMedium is the default for ordinary implementation work.
	TierMedium Tier = "medium"
	// TierHigh covers architecture, security and other judgment-heavy work.
	TierHigh Tier = "high"
)

// tierTable is immutable after init.
var tierTable = map[Tier]struct {
	cost  float64
	model string
}{
	TierLow:    {cost: 1, model: "haiku"},
	TierMedium: {cost: 5, model: "sonnet"},
	TierHigh:   {cost: 15, model: "opus"},
}

// Tiers returns every known tier from cheapest to most expensive.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh}
}

// Valid reports whether the tier is a known value.
func (t Tier) Valid() bool {
	_, ok := tierTable[t]
	return ok
}

// Model returns the model family name historically attached to the tier.
func (t Tier) Model() string {
	return tierTable[t].model
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier accepts a tier name or its model alias (haiku, sonnet, opus).
func ParseTier(value string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if tier := Tier(normalized); tier.Valid() {
		return tier, nil
	}
	for tier, entry := range tierTable {
		if entry.model == normalized {
			return tier, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, value)
}

// CostOf returns the relative cost multiplier for a tier.
func CostOf(tier Tier) (float64, error) {
	entry, ok := tierTable[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, string(tier))
	}
	return entry.cost, nil
}

// CompareCost returns cost(a) / cost(b).
func CompareCost(a, b Tier) (float64, error) {
	costA, err := CostOf(a)
	if err != nil {
		return 0, err
	}
	costB, err := CostOf(b)
	if err != nil {
		return 0, err
	}
	return costA / costB, nil
}
