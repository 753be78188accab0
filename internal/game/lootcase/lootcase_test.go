package lootcase_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
)

const starterYAML = `
id: starter
name: Starter Case
description: A humble case.
price: 2.5
outcomes:
  - item: sticker
    odds: 0.5
  - item: skin
    odds: 0.3
  - item: knife
    odds: 0.2
`

func writeCase(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestLoadCaseFromBytes(t *testing.T) {
	c, err := lootcase.LoadCaseFromBytes([]byte(starterYAML))
	require.NoError(t, err)
	assert.Equal(t, "starter", c.ID)
	assert.Equal(t, "Starter Case", c.Name)
	assert.Equal(t, 2.5, c.Price)
	require.NotNil(t, c.Table())
	assert.Equal(t, 3, c.Table().Len())

	o, err := c.Table().Resolve(0.95)
	require.NoError(t, err)
	assert.Equal(t, "knife", o.Item)
}

func TestLoadCaseFromBytes_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":   "id: [",
		"no id":      "name: x\noutcomes: [{item: a, odds: 1}]",
		"no name":    "id: x\noutcomes: [{item: a, odds: 1}]",
		"neg price":  "id: x\nname: x\nprice: -1\noutcomes: [{item: a, odds: 1}]",
		"no item":    "id: x\nname: x\noutcomes: [{odds: 1}]",
		"short odds": "id: x\nname: x\noutcomes: [{item: a, odds: 0.4}, {item: b, odds: 0.4}]",
		"no outcome": "id: x\nname: x",
	}
	for name, body := range cases {
		_, err := lootcase.LoadCaseFromBytes([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestLoadCases_Dir(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, dir, "starter.yaml", starterYAML)
	writeCase(t, dir, "gold.yaml", "id: gold\nname: Gold\noutcomes: [{item: bar, odds: 1}]")
	writeCase(t, dir, "README.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	cases, err := lootcase.LoadCases(dir)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}

func TestLoadCases_FailsOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, dir, "starter.yaml", starterYAML)
	writeCase(t, dir, "broken.yaml", "id: broken\nname: Broken\noutcomes: [{item: a, odds: 0.5}]")

	_, err := lootcase.LoadCases(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoadCases_MissingDir(t *testing.T) {
	_, err := lootcase.LoadCases("/nonexistent/cases")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	writeCase(t, dir, "starter.yaml", starterYAML)
	writeCase(t, dir, "gold.yaml", "id: gold\nname: Gold\noutcomes: [{item: bar, odds: 1}]")

	r, err := lootcase.NewRegistryFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	c, ok := r.Case("gold")
	require.True(t, ok)
	assert.Equal(t, "Gold", c.Name)

	_, ok = r.Case("missing")
	assert.False(t, ok)

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "gold", all[0].ID)
	assert.Equal(t, "starter", all[1].ID)

	assert.Error(t, r.Register(c), "duplicate IDs are rejected")
}

func TestRegistry_RegisterValidates(t *testing.T) {
	r := lootcase.NewRegistry()
	err := r.Register(&lootcase.Case{ID: "x", Name: "X"})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestShippedCasesLoad(t *testing.T) {
	reg, err := lootcase.NewRegistryFromDir(filepath.Join("..", "..", "..", "content", "cases"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, reg.Len(), 1)

	starter, ok := reg.Case("starter")
	require.True(t, ok)
	assert.Equal(t, 3, starter.Table().Len())
	for _, c := range reg.All() {
		assert.NotNil(t, c.Table(), "case %q", c.ID)
	}
}

func TestParseCase_SkipsValidation(t *testing.T) {
	c, err := lootcase.ParseCase([]byte(`
id: legacy
name: Legacy Case
outcomes:
  - item: sticker
    odds: 0.25
  - item: skin
    odds: 0.25
`))
	require.NoError(t, err)
	assert.Len(t, c.Outcomes, 2)
	assert.Nil(t, c.Table())
	assert.Error(t, c.Validate(), "odds sum to 0.5")

	_, err = lootcase.ParseCase([]byte("outcomes: ["))
	assert.Error(t, err)
}
