package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intakeData() map[string]any {
	return map[string]any{
		"intake":  map[string]any{"name": "Ada Lovelace", "dob": "1815-12-10", "notes": ""},
		"consent": map[string]any{"signed": true},
		"triage":  map[string]any{"severity": 4, "score": 2.95, "level": "high"},
		"review":  map[string]any{"approved": true, "reviewer": "dr-who"},
	}
}

func evaluate(t *testing.T, r *Registry, id string, data map[string]any) (bool, error) {
	t.Helper()
	ev, err := r.Lookup(id)
	require.NoError(t, err)
	return ev.Evaluate(context.Background(), Criterion{ID: id, NodeData: data})
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(nil)
	exact := EvaluatorFunc(func(context.Context, Criterion) (bool, error) { return true, nil })
	r.Register("form-complete", exact)

	tests := []struct {
		id      string
		wantErr bool
	}{
		{"form-complete", false},
		{"fields:$.intake name,dob", false},
		{"present:$.consent.signed", false},
		{"threshold:$.triage.severity greater_than 3", false},
		{"js:$.review.approved", false},
		{"no-such-criterion", true},
		{"unknown:scheme", true},
		{"fields:$.intake", true},
		{"threshold:$.triage.severity above 3", true},
		{"threshold:$.triage.severity greater_than three", true},
		{"js:(((", true},
		{"permission:discharge", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ev, err := r.Lookup(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, ev)
		})
	}
}

func TestRegistry_RegisterOverridesScheme(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("present:$.anything", EvaluatorFunc(func(context.Context, Criterion) (bool, error) { return true, nil }))

	ok, err := evaluate(t, r, "present:$.anything", map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFieldsEvaluator(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		id   string
		want bool
	}{
		{"fields:$.intake name,dob", true},
		{"fields:$.intake name", true},
		{"fields:$.intake name,notes", false},
		{"fields:$.intake name,email", false},
		{"fields:$.missing name", false},
		{"fields:$.consent signed", false}, // not a string
		{"fields:$.triage.level name", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, err := evaluate(t, r, tt.id, intakeData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestPresentEvaluator(t *testing.T) {
	r := NewRegistry(nil)
	data := intakeData()
	data["empty"] = map[string]any{"list": []any{}, "text": "  ", "flag": false, "zero": 0}

	tests := []struct {
		id   string
		want bool
	}{
		{"present:$.consent.signed", true},
		{"present:$.intake.name", true},
		{"present:$.triage", true},
		{"present:$.intake.notes", false},
		{"present:$.missing.field", false},
		{"present:$.empty.list", false},
		{"present:$.empty.text", false},
		{"present:$.empty.flag", false},
		{"present:$.empty.zero", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, err := evaluate(t, r, tt.id, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestThresholdEvaluator_AllOperators(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		id   string
		want bool
	}{
		{"threshold:$.triage.severity greater_than 3", true},
		{"threshold:$.triage.severity greater_than 4", false},
		{"threshold:$.triage.severity less_than 5", true},
		{"threshold:$.triage.severity less_than 4", false},
		{"threshold:$.triage.severity equals 4", true},
		{"threshold:$.triage.severity equals 3", false},
		{"threshold:$.triage.severity greater_than_or_equal 4", true},
		{"threshold:$.triage.severity greater_than_or_equal 5", false},
		{"threshold:$.triage.severity less_than_or_equal 4", true},
		{"threshold:$.triage.severity less_than_or_equal 3", false},
		{"threshold:$.triage.score greater_than_or_equal 3", true}, // 2.95 rounds to 3.0
		{"threshold:$.missing.value greater_than 0", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, err := evaluate(t, r, tt.id, intakeData())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestThresholdEvaluator_NotANumber(t *testing.T) {
	ok, err := evaluate(t, NewRegistry(nil), "threshold:$.triage.level greater_than 1", intakeData())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestEvaluateCondition_FloatRounding(t *testing.T) {
	// 0.1 + 0.2 should equal 0.3 after rounding
	assert.True(t, evaluateCondition(0.1+0.2, "equals", 0.3))
	assert.False(t, evaluateCondition(1, "unknown", 1))
}

func TestScriptEvaluator(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		id      string
		want    bool
		wantErr bool
	}{
		{"js:$.review.approved === true", true, false},
		{"js:$.triage.severity >= 3 && $.consent.signed", true, false},
		{"js:$.intake.name.startsWith('Ada')", true, false},
		{"js:$.triage.severity > 4", false, false},
		{"js:$.review.reviewer", true, false},
		{"js:$.review.missing", false, false},
		{"js:$.nothing.here", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ok, err := evaluate(t, r, tt.id, intakeData())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestScriptEvaluator_ProgramsAreCached(t *testing.T) {
	r := NewRegistry(nil)
	a, err := r.Lookup("js:1 + 1 === 2")
	require.NoError(t, err)
	b, err := r.Lookup("js:1 + 1 === 2")
	require.NoError(t, err)

	assert.Same(t, a.(*scriptEvaluator).program, b.(*scriptEvaluator).program)
	assert.Len(t, r.scripts.programs, 1)
}

func TestScriptEvaluator_InterruptedByContext(t *testing.T) {
	r := NewRegistry(nil)
	ev, err := r.Lookup("js:while (true) {}")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ok, err := ev.Evaluate(ctx, Criterion{NodeData: map[string]any{}})
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{"5", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := toFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}
