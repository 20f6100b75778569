// Package kernel applies modifiers to the world state. Every numeric leaf a
// modifier may touch is registered in a dot-path table of typed accessors;
// writes to constrained paths are clamped to their hard bounds at every
// mutation, and batch application records prior values so a failed batch can
// be rolled back with no net effect.
package kernel

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Modifier operations.
const (
	OpSet      = "set"
	OpAdd      = "add"
	OpMultiply = "multiply"
	OpClamp    = "clamp"
)

// Rejection reasons surfaced as errors. These never abort a tick; callers
// log them and either skip or roll back.
var (
	ErrVariableNotFound = errors.New("variable_not_found")
	ErrNotFinite        = errors.New("result not finite")
	ErrUnknownOperation = errors.New("unknown operation")
)

// accessor reads and writes one numeric leaf of the state tree.
type accessor struct {
	get func(*state.WorldState) float64
	set func(*state.WorldState, float64)
}

// bounds is an inclusive hard constraint on a path.
type bounds struct {
	min, max float64
}

// paths maps dot-path variable names to their typed accessors.
var paths = map[string]accessor{
	"economy.gdp": {
		get: func(s *state.WorldState) float64 { return s.Economy.GDP },
		set: func(s *state.WorldState, v float64) { s.Economy.GDP = v },
	},
	"economy.gdp_delta": {
		get: func(s *state.WorldState) float64 { return s.Economy.GDPDelta },
		set: func(s *state.WorldState, v float64) { s.Economy.GDPDelta = v },
	},
	"economy.inflation": {
		get: func(s *state.WorldState) float64 { return s.Economy.Inflation },
		set: func(s *state.WorldState, v float64) { s.Economy.Inflation = v },
	},
	"economy.unemployment": {
		get: func(s *state.WorldState) float64 { return s.Economy.Unemployment },
		set: func(s *state.WorldState, v float64) { s.Economy.Unemployment = v },
	},
	"economy.tax_rate": {
		get: func(s *state.WorldState) float64 { return s.Economy.TaxRate },
		set: func(s *state.WorldState, v float64) { s.Economy.TaxRate = v },
	},
	"economy.tax_compliance": {
		get: func(s *state.WorldState) float64 { return s.Economy.TaxCompliance },
		set: func(s *state.WorldState, v float64) { s.Economy.TaxCompliance = v },
	},
	"economy.wage_index": {
		get: func(s *state.WorldState) float64 { return s.Economy.WageIndex },
		set: func(s *state.WorldState, v float64) { s.Economy.WageIndex = v },
	},
	"economy.budget.revenue": {
		get: func(s *state.WorldState) float64 { return s.Economy.Budget.Revenue },
		set: func(s *state.WorldState, v float64) { s.Economy.Budget.Revenue = v },
	},
	"economy.budget.spending": {
		get: func(s *state.WorldState) float64 { return s.Economy.Budget.Spending },
		set: func(s *state.WorldState, v float64) { s.Economy.Budget.Spending = v },
	},
	"economy.budget.reserves": {
		get: func(s *state.WorldState) float64 { return s.Economy.Budget.Reserves },
		set: func(s *state.WorldState, v float64) { s.Economy.Budget.Reserves = v },
	},
	"economy.budget.deficit": {
		get: func(s *state.WorldState) float64 { return s.Economy.Budget.Deficit },
		set: func(s *state.WorldState, v float64) { s.Economy.Budget.Deficit = v },
	},
	"economy.market.supply": {
		get: func(s *state.WorldState) float64 { return s.Economy.Market.Supply },
		set: func(s *state.WorldState, v float64) { s.Economy.Market.Supply = v },
	},
	"economy.market.demand": {
		get: func(s *state.WorldState) float64 { return s.Economy.Market.Demand },
		set: func(s *state.WorldState, v float64) { s.Economy.Market.Demand = v },
	},
	"economy.market.price_index": {
		get: func(s *state.WorldState) float64 { return s.Economy.Market.PriceIndex },
		set: func(s *state.WorldState, v float64) { s.Economy.Market.PriceIndex = v },
	},
	"society.stability": {
		get: func(s *state.WorldState) float64 { return s.Society.Stability },
		set: func(s *state.WorldState, v float64) { s.Society.Stability = v },
	},
	"society.public_trust": {
		get: func(s *state.WorldState) float64 { return s.Society.PublicTrust },
		set: func(s *state.WorldState, v float64) { s.Society.PublicTrust = v },
	},
	"society.satisfaction": {
		get: func(s *state.WorldState) float64 { return s.Society.Satisfaction },
		set: func(s *state.WorldState, v float64) { s.Society.Satisfaction = v },
	},
	"society.radicalization": {
		get: func(s *state.WorldState) float64 { return s.Society.Radicalization },
		set: func(s *state.WorldState, v float64) { s.Society.Radicalization = v },
	},
	"society.protest_pressure": {
		get: func(s *state.WorldState) float64 { return s.Society.ProtestPressure },
		set: func(s *state.WorldState, v float64) { s.Society.ProtestPressure = v },
	},
	"government.approval.overall": {
		get: func(s *state.WorldState) float64 { return s.Government.Approval.Overall },
		set: func(s *state.WorldState, v float64) { s.Government.Approval.Overall = v },
	},
	"government.approval.economic": {
		get: func(s *state.WorldState) float64 { return s.Government.Approval.Economic },
		set: func(s *state.WorldState, v float64) { s.Government.Approval.Economic = v },
	},
	"government.approval.social": {
		get: func(s *state.WorldState) float64 { return s.Government.Approval.Social },
		set: func(s *state.WorldState, v float64) { s.Government.Approval.Social = v },
	},
	"government.approval.security": {
		get: func(s *state.WorldState) float64 { return s.Government.Approval.Security },
		set: func(s *state.WorldState, v float64) { s.Government.Approval.Security = v },
	},
}

// hardConstraints are absolute bounds enforced on every write, regardless of
// the operation that produced the value. A hard clamp never fails a modifier;
// it silently truncates.
var hardConstraints = map[string]bounds{
	"economy.gdp":                  {0, 100000},
	"economy.inflation":            {-20, 500},
	"economy.unemployment":         {0, 100},
	"economy.tax_rate":             {0, 100},
	"economy.tax_compliance":       {0, 1},
	"economy.market.supply":        {0, 100000},
	"economy.market.demand":        {0, 100000},
	"economy.market.price_index":   {0.01, 1000},
	"economy.wage_index":           {0.01, 100},
	"economy.budget.reserves":      {-10000, 100000},
	"society.stability":            {0, 100},
	"society.public_trust":         {0, 100},
	"society.satisfaction":         {0, 100},
	"society.radicalization":       {0, 100},
	"society.protest_pressure":     {0, 1},
	"government.approval.overall":  {0, 100},
	"government.approval.economic": {0, 100},
	"government.approval.social":   {0, 100},
	"government.approval.security": {0, 100},
}

// Variables returns every addressable dot-path in sorted order. Advisor
// prompts include this list so untrusted modifiers at least aim at paths
// that exist.
func Variables() []string {
	out := make([]string, 0, len(paths))
	for v := range paths {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the current value of a dot-path variable.
func Resolve(s *state.WorldState, variable string) (float64, error) {
	acc, ok := paths[variable]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrVariableNotFound, variable)
	}
	return acc.get(s), nil
}

// ClampHard applies the path's hard constraint to a candidate value. Paths
// without a registered constraint pass through unchanged.
func ClampHard(variable string, v float64) float64 {
	b, ok := hardConstraints[variable]
	if !ok {
		return v
	}
	return math.Min(b.max, math.Max(b.min, v))
}

// Apply resolves, computes, clamps, and writes one modifier. On rejection
// the state is unchanged.
func Apply(s *state.WorldState, m state.Modifier) error {
	acc, ok := paths[m.Variable]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, m.Variable)
	}

	cur := acc.get(s)
	var next float64
	switch m.Operation {
	case OpSet:
		next = m.Value
	case OpAdd:
		next = cur + m.Value
	case OpMultiply:
		next = cur * m.Value
	case OpClamp:
		next = cur
		if m.Min != nil && next < *m.Min {
			next = *m.Min
		}
		if m.Max != nil && next > *m.Max {
			next = *m.Max
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, m.Operation)
	}

	next = ClampHard(m.Variable, next)
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return fmt.Errorf("%w: %s %s %v", ErrNotFinite, m.Variable, m.Operation, m.Value)
	}

	acc.set(s, next)
	return nil
}

// written records one completed write for rollback.
type written struct {
	variable string
	prior    float64
}

// ApplyBatch attempts an ordered modifier list. On the first rejection it
// restores every modifier already written, in reverse order, and returns the
// rejection; the state carries no net change from a failed batch. Callers
// decide what the failure means (events go to rejected, law interpretations
// are flagged rejected_by_core while the law itself stays active).
func ApplyBatch(s *state.WorldState, mods []state.Modifier, source string) error {
	applied := make([]written, 0, len(mods))
	for i, m := range mods {
		acc, ok := paths[m.Variable]
		if ok {
			applied = append(applied, written{variable: m.Variable, prior: acc.get(s)})
		}
		if err := Apply(s, m); err != nil {
			if ok {
				// The failing modifier wrote nothing; drop its record.
				applied = applied[:len(applied)-1]
			}
			for j := len(applied) - 1; j >= 0; j-- {
				paths[applied[j].variable].set(s, applied[j].prior)
			}
			slog.Warn("modifier batch rejected",
				"source", source,
				"index", i,
				"variable", m.Variable,
				"error", err,
			)
			return err
		}
	}
	return nil
}
