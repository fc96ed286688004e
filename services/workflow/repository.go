package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores workflow definitions in PostgreSQL. Execution state is never
// persisted; only the definitions engines are built from.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflow_definitions table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_definitions (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL DEFAULT '',
			category         TEXT NOT NULL DEFAULT '',
			compliance_level TEXT NOT NULL DEFAULT 'standard',
			nodes            JSONB NOT NULL DEFAULT '[]',
			edges            JSONB NOT NULL DEFAULT '[]',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Save inserts or replaces a definition. The graph is validated first so that
// only loadable definitions are stored.
func (r *Repository) Save(ctx context.Context, def *Definition) error {
	if _, err := NewGraph(def); err != nil {
		return err
	}
	nodesJSON, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(def.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_definitions (id, name, category, compliance_level, nodes, edges)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			compliance_level = EXCLUDED.compliance_level,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = NOW()
	`, def.ID, def.Name, def.Category, string(def.ComplianceLevel), nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", def.ID, err)
	}
	return nil
}

// Seed inserts the sample patient intake workflow if it does not already exist.
func (r *Repository) Seed(ctx context.Context) error {
	def := SampleDefinition()
	nodesJSON, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("marshal seed nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(def.Edges)
	if err != nil {
		return fmt.Errorf("marshal seed edges: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflow_definitions (id, name, category, compliance_level, nodes, edges)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, def.ID, def.Name, def.Category, string(def.ComplianceLevel), nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

const selectDefinition = `
	SELECT id, name, category, compliance_level, nodes, edges, created_at, updated_at
	FROM workflow_definitions`

// Get retrieves a definition by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*Definition, error) {
	def, err := scanDefinition(r.db.QueryRow(ctx, selectDefinition+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return def, nil
}

// List returns all definitions ordered by name.
func (r *Repository) List(ctx context.Context) ([]Definition, error) {
	rows, err := r.db.Query(ctx, selectDefinition+` ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		out = append(out, *def)
	}
	return out, rows.Err()
}

func scanDefinition(row pgx.Row) (*Definition, error) {
	var (
		def                  Definition
		level                string
		nodesJSON, edgesJSON []byte
	)
	err := row.Scan(&def.ID, &def.Name, &def.Category, &level, &nodesJSON, &edgesJSON, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}
	def.ComplianceLevel = ComplianceLevel(level)
	if err := json.Unmarshal(nodesJSON, &def.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &def.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return &def, nil
}

// InitDB creates the schema and seeds initial data. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	return repo.Seed(ctx)
}
