package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var errCriterionRejected = errors.New("criterion rejected")

// Validator decides whether an edge may be traversed.
type Validator struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics
}

// NewValidator creates a Validator resolving criteria through registry.
func NewValidator(registry *Registry, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{registry: registry, logger: logger}
}

// WithMetrics records validation outcomes and latency on m.
func (v *Validator) WithMetrics(m *Metrics) *Validator {
	v.metrics = m
	return v
}

// Validate reports whether every criterion of the edge passes.
func (v *Validator) Validate(ctx context.Context, edge Edge, data map[string]any) bool {
	return len(v.Check(ctx, edge, data)) == 0
}

// Check evaluates the edge's criteria concurrently and returns the ones that failed,
// in declaration order. Evaluation stops at the first failure, so the result names
// at least one failing criterion but not necessarily all of them. Evaluator errors
// and panics count as failures and are logged, never returned.
func (v *Validator) Check(ctx context.Context, edge Edge, data map[string]any) []string {
	if !edge.RequiresValidation || len(edge.ValidationCriteria) == 0 {
		return nil
	}

	start := time.Now()
	var (
		mu     sync.Mutex
		failed = make(map[int]string)
	)
	fail := func(i int) {
		mu.Lock()
		failed[i] = edge.ValidationCriteria[i]
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range edge.ValidationCriteria {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					v.logger.Error("Criterion evaluator panicked", "edge", edge.ID, "criterion", id, "panic", r)
					fail(i)
					err = fmt.Errorf("criterion %q panicked: %v", id, r)
				}
			}()

			ok, err := v.evaluate(gctx, edge, id, data)
			if ok && err == nil {
				return nil
			}
			// A peer already failed and cancelled the group.
			if gctx.Err() != nil && ctx.Err() == nil {
				return gctx.Err()
			}
			if err != nil {
				v.logger.Warn("Criterion evaluation failed", "edge", edge.ID, "criterion", id, "error", err)
			}
			fail(i)
			return errCriterionRejected
		})
	}
	_ = g.Wait()

	positions := make([]int, 0, len(failed))
	for i := range failed {
		positions = append(positions, i)
	}
	sort.Ints(positions)
	out := make([]string, 0, len(positions))
	for _, i := range positions {
		out = append(out, failed[i])
	}

	if v.metrics != nil {
		v.metrics.recordValidation(ctx, edge, len(out) == 0, time.Since(start))
	}
	v.logger.Debug("Edge validated", "edge", edge.ID, "passed", len(out) == 0, "failed", out)
	return out
}

func (v *Validator) evaluate(ctx context.Context, edge Edge, id string, data map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ev, err := v.registry.Lookup(id)
	if err != nil {
		return false, err
	}
	return ev.Evaluate(ctx, Criterion{ID: id, Edge: edge, NodeData: data})
}
