package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Criterion is a single validation check requested by a gated edge.
type Criterion struct {
	ID   string
	Edge Edge
	// NodeData is a copy of the completion payloads recorded so far, keyed by node ID.
	NodeData map[string]any
}

// CriterionEvaluator decides whether one criterion holds. Implementations may block
// on I/O and should honour ctx cancellation.
type CriterionEvaluator interface {
	Evaluate(ctx context.Context, c Criterion) (bool, error)
}

// EvaluatorFunc adapts a function to CriterionEvaluator.
type EvaluatorFunc func(ctx context.Context, c Criterion) (bool, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, c Criterion) (bool, error) {
	return f(ctx, c)
}

// Registry maps criterion IDs to their evaluator. IDs not registered exactly are
// resolved through the built-in schemes:
//
//	fields:<jsonpath> <f1>,<f2>            object at path has non-empty string fields
//	present:<jsonpath>                     path resolves to a non-empty value
//	threshold:<jsonpath> <operator> <num>  numeric comparison
//	js:<expression>                        JavaScript with $ bound to node data
//	permission:<name>                      remote permission lookup
type Registry struct {
	mu          sync.RWMutex
	evaluators  map[string]CriterionEvaluator
	permissions PermissionClient
	scripts     *scriptCache
}

// NewRegistry creates a registry with the built-in schemes enabled. permissions may
// be nil, in which case permission: criteria always fail.
func NewRegistry(permissions PermissionClient) *Registry {
	return &Registry{
		evaluators:  make(map[string]CriterionEvaluator),
		permissions: permissions,
		scripts:     newScriptCache(),
	}
}

// Register binds an exact criterion ID to an evaluator, replacing any previous one.
func (r *Registry) Register(id string, ev CriterionEvaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[id] = ev
}

// Lookup resolves the evaluator for a criterion ID.
func (r *Registry) Lookup(id string) (CriterionEvaluator, error) {
	r.mu.RLock()
	ev, ok := r.evaluators[id]
	r.mu.RUnlock()
	if ok {
		return ev, nil
	}

	scheme, arg, found := strings.Cut(id, ":")
	if !found {
		return nil, fmt.Errorf("no evaluator registered for criterion %q", id)
	}
	arg = strings.TrimSpace(arg)

	switch scheme {
	case "fields":
		return newFieldsEvaluator(arg)
	case "present":
		return presentEvaluator{path: arg}, nil
	case "threshold":
		return newThresholdEvaluator(arg)
	case "js":
		return r.scripts.evaluator(arg)
	case "permission":
		if r.permissions == nil {
			return nil, fmt.Errorf("criterion %q: no permission client configured", id)
		}
		return permissionEvaluator{client: r.permissions, permission: arg}, nil
	default:
		return nil, fmt.Errorf("no evaluator registered for criterion %q", id)
	}
}
