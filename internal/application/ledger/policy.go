package ledger

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

const (
	DefaultRenewalWindowDays = 60
	DefaultBlockRule         = "daysRemaining > renewalWindowDays"
)

// BlockPolicy decides whether an overlapping active permit blocks a new request. The rule
// is a govaluate expression over daysRemaining, renewalWindowDays and state.
type BlockPolicy struct {
	window int
	rule   string
	expr   *govaluate.EvaluableExpression
}

func NewBlockPolicy(rule string, window int) (*BlockPolicy, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		rule = DefaultBlockRule
	}
	if window < 0 {
		return nil, fmt.Errorf("renewal window must not be negative")
	}
	expr, err := govaluate.NewEvaluableExpression(rule)
	if err != nil {
		return nil, fmt.Errorf("parse conflict block rule: %w", err)
	}
	return &BlockPolicy{window: window, rule: rule, expr: expr}, nil
}

// DefaultBlockPolicy blocks when more than 60 days of validity remain.
func DefaultBlockPolicy() *BlockPolicy {
	p, err := NewBlockPolicy(DefaultBlockRule, DefaultRenewalWindowDays)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *BlockPolicy) Window() int {
	return p.window
}

// Blocks evaluates the rule. A rule that errors or yields a non-boolean falls back to
// daysRemaining > window.
func (p *BlockPolicy) Blocks(state string, daysRemaining int) bool {
	result, err := p.expr.Evaluate(map[string]interface{}{
		"daysRemaining":     float64(daysRemaining),
		"renewalWindowDays": float64(p.window),
		"state":             state,
	})
	if err == nil {
		if v, ok := result.(bool); ok {
			return v
		}
	}
	return daysRemaining > p.window
}
