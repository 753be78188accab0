package fairness_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/fairplay/internal/game/fairness"
)

func abcTable(t *testing.T) *fairness.Table {
	t.Helper()
	table, err := fairness.NewTable([]fairness.Outcome{
		{Item: "A", Odds: 0.5},
		{Item: "B", Odds: 0.3},
		{Item: "C", Odds: 0.2},
	})
	require.NoError(t, err)
	return table
}

func TestTable_Resolve_Monotonicity(t *testing.T) {
	table := abcTable(t)
	cases := []struct {
		roll float64
		want string
	}{
		{0, "A"},
		{0.4, "A"},
		{0.5, "A"},
		{0.6, "B"},
		{0.8, "B"},
		{0.95, "C"},
		{1.0, "C"},
	}
	for _, tc := range cases {
		got, err := table.Resolve(tc.roll)
		require.NoError(t, err, "roll %v", tc.roll)
		assert.Equal(t, tc.want, got.Item, "roll %v", tc.roll)
	}
}

func TestTable_Resolve_ZeroOdds(t *testing.T) {
	table, err := fairness.NewTable([]fairness.Outcome{
		{Item: "Z", Odds: 0},
		{Item: "A", Odds: 0.25},
		{Item: "dead", Odds: 0},
		{Item: "B", Odds: 0.75},
		{Item: "trailing", Odds: 0},
	})
	require.NoError(t, err)

	cases := []struct {
		roll float64
		want string
	}{
		{0, "Z"}, // cumulative 0 >= 0: a leading zero-odds entry takes a zero roll
		{math.SmallestNonzeroFloat64, "A"},
		{0.25, "A"},
		{0.5, "B"},
		{1, "B"},
	}
	for _, tc := range cases {
		got, err := table.Resolve(tc.roll)
		require.NoError(t, err, "roll %v", tc.roll)
		assert.Equal(t, tc.want, got.Item, "roll %v", tc.roll)

		legacy, ok := fairness.ResolveEntries(table.Outcomes(), tc.roll)
		require.True(t, ok)
		assert.Equal(t, legacy, got, "roll %v", tc.roll)
	}
}

// TestTable_Resolve_ClosesLastBucket verifies that a table whose odds sum to
// slightly less than 1.0 still resolves a roll of exactly 1.0.
func TestTable_Resolve_ClosesLastBucket(t *testing.T) {
	table, err := fairness.NewTable([]fairness.Outcome{
		{Item: "A", Odds: 0.1},
		{Item: "B", Odds: 0.2},
		{Item: "C", Odds: 0.7 - 1e-12},
	})
	require.NoError(t, err)

	got, err := table.Resolve(1.0)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Item)
}

func TestTable_Resolve_OutOfRange(t *testing.T) {
	table := abcTable(t)
	for _, roll := range []float64{-0.01, 1.0000001, math.NaN(), math.Inf(1)} {
		_, err := table.Resolve(roll)
		assert.ErrorIs(t, err, fairness.ErrRollOutOfRange, "roll %v", roll)
	}
}

func TestNewTable_Rejects(t *testing.T) {
	cases := map[string][]fairness.Outcome{
		"empty":         nil,
		"sums to half":  {{Item: "A", Odds: 0.25}, {Item: "B", Odds: 0.25}},
		"sums over one": {{Item: "A", Odds: 0.75}, {Item: "B", Odds: 0.5}},
		"negative":      {{Item: "A", Odds: 1.5}, {Item: "B", Odds: -0.5}},
		"nan":           {{Item: "A", Odds: math.NaN()}},
		"inf":           {{Item: "A", Odds: math.Inf(1)}},
		"all zero":      {{Item: "A", Odds: 0}},
	}
	for name, outcomes := range cases {
		_, err := fairness.NewTable(outcomes)
		assert.Error(t, err, name)
	}
}

func TestNewTable_CopiesInput(t *testing.T) {
	in := []fairness.Outcome{{Item: "A", Odds: 1}}
	table, err := fairness.NewTable(in)
	require.NoError(t, err)
	in[0].Item = "mutated"

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "A", table.Outcomes()[0].Item)
}

func TestMustNewTable_Panics(t *testing.T) {
	assert.Panics(t, func() { fairness.MustNewTable(nil) })
	assert.NotPanics(t, func() { fairness.MustNewTable([]fairness.Outcome{{Item: "A", Odds: 1}}) })
}

// TestResolveEntries_Fallback documents the legacy resolution: a table whose
// odds never reach the roll yields its first entry.
func TestResolveEntries_Fallback(t *testing.T) {
	short := []fairness.Outcome{{Item: "A", Odds: 0.25}, {Item: "B", Odds: 0.25}}
	got, ok := fairness.ResolveEntries(short, 0.9)
	require.True(t, ok)
	assert.Equal(t, "A", got.Item)

	_, err := fairness.NewTable(short)
	assert.Error(t, err, "the same table is rejected by NewTable")
}

func TestResolveEntries_MatchesTable(t *testing.T) {
	outcomes := []fairness.Outcome{{Item: "A", Odds: 0.5}, {Item: "B", Odds: 0.3}, {Item: "C", Odds: 0.2}}
	for _, roll := range []float64{0, 0.4, 0.6, 0.95} {
		legacy, ok := fairness.ResolveEntries(outcomes, roll)
		require.True(t, ok)
		strict, err := abcTable(t).Resolve(roll)
		require.NoError(t, err)
		assert.Equal(t, strict, legacy, "roll %v", roll)
	}
}

func TestResolveEntries_Empty(t *testing.T) {
	_, ok := fairness.ResolveEntries(nil, 0.5)
	assert.False(t, ok)
}

// TestTable_Resolve_Property verifies that any normalised table resolves every
// positive roll to an outcome with positive odds.
func TestTable_Resolve_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		weights := rapid.SliceOfN(rapid.IntRange(0, 1000), 1, 20).Draw(rt, "weights")
		var total int
		for _, w := range weights {
			total += w
		}
		if total == 0 {
			weights[0] = 1
			total = 1
		}
		outcomes := make([]fairness.Outcome, len(weights))
		for i, w := range weights {
			outcomes[i] = fairness.Outcome{Item: string(rune('a' + i)), Odds: float64(w) / float64(total)}
		}
		table, err := fairness.NewTable(outcomes)
		require.NoError(rt, err)

		roll := rapid.Float64Range(0, 1).Draw(rt, "roll")
		idx, err := table.ResolveIndex(roll)
		require.NoError(rt, err)
		if roll == 0 {
			assert.Equal(rt, 0, idx)
		} else {
			assert.Greater(rt, outcomes[idx].Odds, 0.0)
		}
	})
}

// TestTable_Resolve_MatchesEntries_Property verifies that a validated table
// resolves like the plain cumulative walk away from the closed upper bound.
func TestTable_Resolve_MatchesEntries_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		weights := rapid.SliceOfN(rapid.IntRange(0, 1000), 1, 20).Draw(rt, "weights")
		var total int
		for _, w := range weights {
			total += w
		}
		if total == 0 {
			weights[len(weights)-1] = 1
			total = 1
		}
		outcomes := make([]fairness.Outcome, len(weights))
		for i, w := range weights {
			outcomes[i] = fairness.Outcome{Item: string(rune('a' + i)), Odds: float64(w) / float64(total)}
		}
		table, err := fairness.NewTable(outcomes)
		require.NoError(rt, err)

		roll := rapid.Float64Range(0, 0.999).Draw(rt, "roll")
		got, err := table.Resolve(roll)
		require.NoError(rt, err)
		want, ok := fairness.ResolveEntries(outcomes, roll)
		require.True(rt, ok)
		assert.Equal(rt, want, got)
	})
}
