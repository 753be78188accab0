package fairness

import (
	"errors"
	"fmt"
	"math"
)

// SumTolerance is the maximum distance between a table's total odds and 1.0.
const SumTolerance = 1e-9

// ErrRollOutOfRange is returned when a roll outside [0, 1] is resolved.
var ErrRollOutOfRange = errors.New("roll out of range")

// ErrTableExhausted is returned when the cumulative walk of a validated table
// never reaches the roll. It indicates a broken table invariant.
var ErrTableExhausted = errors.New("outcome table exhausted")

// Outcome is a single weighted entry in an outcome table.
type Outcome struct {
	Item string  `yaml:"item"`
	Odds float64 `yaml:"odds"`
}

// Table is a validated outcome table.
//
// Invariant: odds are finite and non-negative, their sum is within
// SumTolerance of 1.0, and the cumulative bound of the last entry with
// positive odds is exactly 1.0.
type Table struct {
	outcomes   []Outcome
	cumulative []float64
}

// NewTable validates outcomes and builds a Table from a copy of them.
//
// Postcondition: Returns a Table satisfying the Table invariant, or an error
// naming the first violated rule.
func NewTable(outcomes []Outcome) (*Table, error) {
	if len(outcomes) == 0 {
		return nil, errors.New("outcome table: must contain at least one outcome")
	}

	cumulative := make([]float64, len(outcomes))
	var sum float64
	last := -1
	for i, o := range outcomes {
		if math.IsNaN(o.Odds) || math.IsInf(o.Odds, 0) {
			return nil, fmt.Errorf("outcome table: outcome[%d] odds must be finite, got %v", i, o.Odds)
		}
		if o.Odds < 0 {
			return nil, fmt.Errorf("outcome table: outcome[%d] odds must be >= 0, got %v", i, o.Odds)
		}
		sum += o.Odds
		cumulative[i] = sum
		if o.Odds > 0 {
			last = i
		}
	}
	if math.Abs(sum-1.0) > SumTolerance {
		return nil, fmt.Errorf("outcome table: odds must sum to 1.0 (±%g), got %v", SumTolerance, sum)
	}
	// Close the final bucket so a roll of exactly 1.0 and accumulated drift
	// both land inside the table.
	for i := last; i < len(cumulative); i++ {
		cumulative[i] = 1.0
	}

	copied := make([]Outcome, len(outcomes))
	copy(copied, outcomes)
	return &Table{outcomes: copied, cumulative: cumulative}, nil
}

// MustNewTable is NewTable that panics on error. Useful for package-level tables.
func MustNewTable(outcomes []Outcome) *Table {
	t, err := NewTable(outcomes)
	if err != nil {
		panic("fairness: MustNewTable failed: " + err.Error())
	}
	return t
}

// Len returns the number of outcomes in the table.
func (t *Table) Len() int {
	return len(t.outcomes)
}

// Outcomes returns a copy of the table's outcomes in order.
func (t *Table) Outcomes() []Outcome {
	out := make([]Outcome, len(t.outcomes))
	copy(out, t.outcomes)
	return out
}

// ResolveIndex returns the index of the outcome selected by roll.
//
// The selected outcome is the first entry whose cumulative sum is >= roll.
// A zero-odds entry shares its predecessor's bound and so is only reachable
// when it leads the table and roll is exactly 0.
//
// Precondition: 0 <= roll <= 1, otherwise ErrRollOutOfRange is returned.
func (t *Table) ResolveIndex(roll float64) (int, error) {
	if math.IsNaN(roll) || roll < 0 || roll > 1 {
		return 0, fmt.Errorf("%w: %v", ErrRollOutOfRange, roll)
	}
	for i := range t.outcomes {
		if roll <= t.cumulative[i] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: roll %v", ErrTableExhausted, roll)
}

// Resolve returns the outcome selected by roll. See ResolveIndex.
func (t *Table) Resolve(roll float64) (Outcome, error) {
	i, err := t.ResolveIndex(roll)
	if err != nil {
		return Outcome{}, err
	}
	return t.outcomes[i], nil
}

// ResolveEntries walks unvalidated outcomes with a running cumulative sum and
// returns the first entry whose cumulative sum is >= roll. When no entry
// reaches roll it returns the first entry.
//
// This reproduces the resolution used before tables were validated and exists
// only to re-verify rolls recorded against such tables. New code uses Table.
//
// Postcondition: ok is false iff outcomes is empty.
func ResolveEntries(outcomes []Outcome, roll float64) (Outcome, bool) {
	if len(outcomes) == 0 {
		return Outcome{}, false
	}
	var cum float64
	for _, o := range outcomes {
		cum += o.Odds
		if cum >= roll {
			return o, true
		}
	}
	return outcomes[0], true
}
