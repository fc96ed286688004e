package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingHCL = `
workflow "onboarding" {
  name             = "Employee Onboarding"
  category         = "hr"
  compliance_level = "enhanced"

  node "start" {
    type  = "start"
    label = "Start"
  }

  node "collect" {
    type                       = "process"
    label                      = "Collect documents"
    priority                   = "critical"
    estimated_duration_seconds = 900
    x                          = 120
    y                          = 40
  }

  node "done" {
    type = "end"
  }

  edge "e1" {
    source = "start"
    target = "collect"
  }

  edge "e2" {
    source              = "collect"
    target              = "done"
    type                = "conditional"
    requires_validation = true
    validation_criteria = ["present:$.collect.passport", "fields:$.collect tax_id"]
  }
}
`

const offboardingHCL = `
workflow "offboarding" {
  name = "Offboarding"

  node "start" {
    type = "start"
  }
  node "end" {
    type = "end"
  }
  edge "e1" {
    source = "start"
    target = "end"
  }
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "onboarding.hcl", onboardingHCL)

	defs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, "onboarding", def.ID)
	assert.Equal(t, "Employee Onboarding", def.Name)
	assert.Equal(t, "hr", def.Category)
	assert.Equal(t, ComplianceEnhanced, def.ComplianceLevel)
	require.Len(t, def.Nodes, 3)
	require.Len(t, def.Edges, 2)

	collect := def.Nodes[1]
	assert.Equal(t, NodeProcess, collect.Kind)
	assert.Equal(t, PriorityCritical, collect.Priority)
	assert.Equal(t, 900, collect.EstimatedDurationSeconds)
	assert.Equal(t, Position{X: 120, Y: 40}, collect.Position)

	assert.Equal(t, EdgeDefault, def.Edges[0].Kind)
	gated := def.Edges[1]
	assert.Equal(t, EdgeConditional, gated.Kind)
	assert.True(t, gated.RequiresValidation)
	assert.Equal(t, []string{"present:$.collect.passport", "fields:$.collect tax_id"}, gated.ValidationCriteria)

	_, err = NewGraph(def)
	assert.NoError(t, err)
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "offboarding.hcl", offboardingHCL)

	defs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, ComplianceStandard, defs[0].ComplianceLevel)
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.hcl", `workflow "x" { node "a" { label = "missing type" } }`)

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.hcl", onboardingHCL)
	writeFile(t, dir, "a.hcl", offboardingHCL)
	writeFile(t, dir, "README.md", "not a definition")

	store, err := LoadDir(dir)
	require.NoError(t, err)

	ctx := context.Background()
	defs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "offboarding", defs[0].ID)
	assert.Equal(t, "onboarding", defs[1].ID)

	def, err := store.Get(ctx, "onboarding")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Len(t, def.Nodes, 3)

	def, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("empty dir", func(t *testing.T) {
		store, err := LoadDir(t.TempDir())
		require.NoError(t, err)
		defs, _ := store.List(context.Background())
		assert.Empty(t, defs)
	})

	t.Run("invalid graph", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "broken.hcl", `
workflow "broken" {
  node "start" {
    type = "start"
  }
  edge "e1" {
    source = "start"
    target = "ghost"
  }
}
`)
		_, err := LoadDir(dir)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("duplicate workflow", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "one.hcl", offboardingHCL)
		writeFile(t, dir, "two.hcl", offboardingHCL)
		_, err := LoadDir(dir)
		assert.ErrorContains(t, err, "duplicate workflow")
	})
}

func TestMemoryStore_Put(t *testing.T) {
	store := NewMemoryStore()

	err := store.Put(&Definition{ID: "bad", Nodes: []Node{{ID: "a", Kind: NodeProcess}}})
	assert.ErrorIs(t, err, ErrInvalidGraph)

	require.NoError(t, store.Put(linearDefinition()))
	def, err := store.Get(context.Background(), "linear")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "Linear", def.Name)
}
