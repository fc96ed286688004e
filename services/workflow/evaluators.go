package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/oliveagle/jsonpath"
)

// fieldsEvaluator checks that the object at path carries non-empty string fields.
type fieldsEvaluator struct {
	path   string
	fields []string
}

func newFieldsEvaluator(arg string) (*fieldsEvaluator, error) {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		return nil, fmt.Errorf("fields criterion %q: want \"<path> <f1>,<f2>\"", arg)
	}
	var fields []string
	for _, f := range strings.Split(parts[1], ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return &fieldsEvaluator{path: parts[0], fields: fields}, nil
}

func (e *fieldsEvaluator) Evaluate(_ context.Context, c Criterion) (bool, error) {
	obj, err := jsonpath.JsonPathLookup(c.NodeData, e.path)
	if err != nil {
		return false, nil
	}
	m, ok := obj.(map[string]any)
	if !ok {
		return false, nil
	}
	for _, field := range e.fields {
		if s, ok := m[field].(string); !ok || strings.TrimSpace(s) == "" {
			return false, nil
		}
	}
	return true, nil
}

// presentEvaluator passes when the path resolves to a non-empty value.
type presentEvaluator struct {
	path string
}

func (e presentEvaluator) Evaluate(_ context.Context, c Criterion) (bool, error) {
	v, err := jsonpath.JsonPathLookup(c.NodeData, e.path)
	if err != nil {
		return false, nil
	}
	return !isEmpty(v), nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// thresholdEvaluator compares a numeric value at path against a constant.
type thresholdEvaluator struct {
	path      string
	operator  string
	threshold float64
}

func newThresholdEvaluator(arg string) (*thresholdEvaluator, error) {
	parts := strings.Fields(arg)
	if len(parts) != 3 {
		return nil, fmt.Errorf("threshold criterion %q: want \"<path> <operator> <number>\"", arg)
	}
	if !validOperators[parts[1]] {
		return nil, fmt.Errorf("threshold criterion %q: unknown operator %q", arg, parts[1])
	}
	th, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("threshold criterion %q: %w", arg, err)
	}
	return &thresholdEvaluator{path: parts[0], operator: parts[1], threshold: th}, nil
}

func (e *thresholdEvaluator) Evaluate(_ context.Context, c Criterion) (bool, error) {
	raw, err := jsonpath.JsonPathLookup(c.NodeData, e.path)
	if err != nil {
		return false, nil
	}
	value, ok := toFloat64(raw)
	if !ok {
		return false, fmt.Errorf("value at %s is not a number", e.path)
	}
	return evaluateCondition(value, e.operator, e.threshold), nil
}

var validOperators = map[string]bool{
	"greater_than":          true,
	"less_than":             true,
	"equals":                true,
	"greater_than_or_equal": true,
	"less_than_or_equal":    true,
}

// evaluateCondition compares value against threshold using the given operator.
// Both values are rounded to 1 decimal place to avoid floating-point precision issues.
func evaluateCondition(value float64, operator string, threshold float64) bool {
	v := math.Round(value*10) / 10
	th := math.Round(threshold*10) / 10

	switch operator {
	case "greater_than":
		return v > th
	case "less_than":
		return v < th
	case "equals":
		return v == th
	case "greater_than_or_equal":
		return v >= th
	case "less_than_or_equal":
		return v <= th
	default:
		return false
	}
}

// scriptCache keeps compiled js: programs. goja runtimes are not goroutine-safe,
// so each evaluation gets its own runtime while the compiled program is shared.
type scriptCache struct {
	mu       sync.Mutex
	programs map[string]*goja.Program
}

func newScriptCache() *scriptCache {
	return &scriptCache{programs: make(map[string]*goja.Program)}
}

func (s *scriptCache) evaluator(expression string) (*scriptEvaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.programs[expression]; ok {
		return &scriptEvaluator{program: p}, nil
	}
	p, err := goja.Compile("criterion.js", expression, false)
	if err != nil {
		return nil, fmt.Errorf("compile js criterion: %w", err)
	}
	s.programs[expression] = p
	return &scriptEvaluator{program: p}, nil
}

type scriptEvaluator struct {
	program *goja.Program
}

func (e *scriptEvaluator) Evaluate(ctx context.Context, c Criterion) (bool, error) {
	// Round-trip through JSON so scripts see plain objects rather than wrapped Go maps.
	raw, err := json.Marshal(c.NodeData)
	if err != nil {
		return false, fmt.Errorf("encode node data: %w", err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("decode node data: %w", err)
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if err := vm.Set("$", data); err != nil {
		return false, fmt.Errorf("bind node data: %w", err)
	}
	val, err := vm.RunProgram(e.program)
	if err != nil {
		return false, fmt.Errorf("error executing javascript %w", err)
	}
	return val.ToBoolean(), nil
}

type permissionEvaluator struct {
	client     PermissionClient
	permission string
}

func (e permissionEvaluator) Evaluate(ctx context.Context, c Criterion) (bool, error) {
	return e.client.Allowed(ctx, e.permission, c.Edge)
}

// toFloat64 converts an any value to float64, handling json.Number and numeric types.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
