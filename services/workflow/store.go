package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// DefinitionStore abstracts where workflow definitions come from.
type DefinitionStore interface {
	// Get returns nil, nil when the definition does not exist.
	Get(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]Definition, error)
}

// MemoryStore keeps definitions in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewMemoryStore creates a store holding defs.
func NewMemoryStore(defs ...*Definition) *MemoryStore {
	s := &MemoryStore{defs: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		s.defs[d.ID] = d
	}
	return s
}

// Put adds or replaces a definition after validating its graph.
func (s *MemoryStore) Put(def *Definition) error {
	if _, err := NewGraph(def); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defs[id], nil
}

func (s *MemoryStore) List(_ context.Context) ([]Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// hclFile is the on-disk layout of a definitions file:
//
//	workflow "patient-intake" {
//	  name             = "Patient Intake"
//	  compliance_level = "enhanced"
//
//	  node "start" {
//	    type  = "start"
//	    label = "Start"
//	  }
//	  edge "e1" {
//	    source              = "start"
//	    target              = "intake"
//	    requires_validation = true
//	    validation_criteria = ["present:$.intake.name"]
//	  }
//	}
type hclFile struct {
	Workflows []hclWorkflow `hcl:"workflow,block"`
}

type hclWorkflow struct {
	ID              string    `hcl:"id,label"`
	Name            string    `hcl:"name,optional"`
	Category        string    `hcl:"category,optional"`
	ComplianceLevel string    `hcl:"compliance_level,optional"`
	Nodes           []hclNode `hcl:"node,block"`
	Edges           []hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID                       string  `hcl:"id,label"`
	Kind                     string  `hcl:"type"`
	Label                    string  `hcl:"label,optional"`
	Description              string  `hcl:"description,optional"`
	Category                 string  `hcl:"category,optional"`
	Priority                 string  `hcl:"priority,optional"`
	EstimatedDurationSeconds int     `hcl:"estimated_duration_seconds,optional"`
	X                        float64 `hcl:"x,optional"`
	Y                        float64 `hcl:"y,optional"`
}

type hclEdge struct {
	ID                 string   `hcl:"id,label"`
	Source             string   `hcl:"source"`
	Target             string   `hcl:"target"`
	Kind               string   `hcl:"type,optional"`
	Label              string   `hcl:"label,optional"`
	Condition          string   `hcl:"condition,optional"`
	RequiresValidation bool     `hcl:"requires_validation,optional"`
	ValidationCriteria []string `hcl:"validation_criteria,optional"`
}

// LoadDir reads every *.hcl file in dir into a MemoryStore. Each workflow is
// validated; the first invalid one aborts the load.
func LoadDir(dir string) (*MemoryStore, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("definitions dir: %w", err)
		}
	}
	sort.Strings(files)

	store := NewMemoryStore()
	for _, path := range files {
		defs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if _, dup := store.defs[def.ID]; dup {
				return nil, fmt.Errorf("%s: duplicate workflow %q", path, def.ID)
			}
			if err := store.Put(def); err != nil {
				return nil, fmt.Errorf("%s: workflow %q: %w", path, def.ID, err)
			}
		}
	}
	return store, nil
}

// LoadFile decodes the workflows declared in one HCL file.
func LoadFile(path string) ([]*Definition, error) {
	var file hclFile
	if err := hclsimple.DecodeFile(path, nil, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	defs := make([]*Definition, 0, len(file.Workflows))
	for _, w := range file.Workflows {
		def := &Definition{
			ID:              w.ID,
			Name:            w.Name,
			Category:        w.Category,
			ComplianceLevel: ComplianceLevel(w.ComplianceLevel),
		}
		if def.ComplianceLevel == "" {
			def.ComplianceLevel = ComplianceStandard
		}
		for _, n := range w.Nodes {
			def.Nodes = append(def.Nodes, Node{
				ID:                       n.ID,
				Kind:                     NodeKind(n.Kind),
				Label:                    n.Label,
				Description:              n.Description,
				Category:                 n.Category,
				Priority:                 Priority(n.Priority),
				EstimatedDurationSeconds: n.EstimatedDurationSeconds,
				Position:                 Position{X: n.X, Y: n.Y},
			})
		}
		for _, e := range w.Edges {
			kind := EdgeKind(e.Kind)
			if kind == "" {
				kind = EdgeDefault
			}
			def.Edges = append(def.Edges, Edge{
				ID:                 e.ID,
				Source:             e.Source,
				Target:             e.Target,
				Kind:               kind,
				Label:              e.Label,
				Condition:          e.Condition,
				RequiresValidation: e.RequiresValidation,
				ValidationCriteria: e.ValidationCriteria,
			})
		}
		defs = append(defs, def)
	}
	return defs, nil
}
