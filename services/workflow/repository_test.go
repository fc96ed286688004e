package workflow

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRepository_InitSchema(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	err := repo.InitSchema(context.Background())
	require.NoError(t, err)

	// Running again should be idempotent
	err = repo.InitSchema(context.Background())
	require.NoError(t, err)
}

func TestRepository_Seed_Idempotent(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	require.NoError(t, repo.Seed(ctx))
	require.NoError(t, repo.Seed(ctx)) // Second call should not error
}

func TestRepository_Get_Found(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, InitDB(ctx, pool))

	def, err := repo.Get(ctx, SampleWorkflowID)
	require.NoError(t, err)
	require.NotNil(t, def)

	assert.Equal(t, SampleWorkflowID, def.ID)
	assert.Equal(t, "Patient Intake", def.Name)
	assert.Equal(t, ComplianceEnhanced, def.ComplianceLevel)
	assert.Len(t, def.Nodes, 7)
	assert.Len(t, def.Edges, 8)
	assert.False(t, def.CreatedAt.IsZero())

	// The stored definition must still compile into a graph.
	g, err := NewGraph(def)
	require.NoError(t, err)
	start, ok := g.Start()
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)
}

func TestRepository_Get_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	def, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestRepository_SaveAndList(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, InitDB(ctx, pool))

	def := linearDefinition()
	require.NoError(t, repo.Save(ctx, def))

	def.Name = "Linear v2"
	require.NoError(t, repo.Save(ctx, def))

	got, err := repo.Get(ctx, "linear")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Linear v2", got.Name)
	assert.Equal(t, def.Edges, got.Edges)

	defs, err := repo.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, "linear")
	assert.Contains(t, ids, SampleWorkflowID)
}

func TestRepository_Save_RejectsInvalidGraph(t *testing.T) {
	// Validation happens before the pool is touched.
	repo := NewRepository(nil)

	err := repo.Save(context.Background(), &Definition{ID: "broken", Nodes: []Node{{ID: "a", Kind: NodeProcess}}})
	assert.ErrorIs(t, err, ErrInvalidGraph)
}
