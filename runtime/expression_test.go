package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprStore(t *testing.T) Store {
	t.Helper()
	s := NewMemoryStore()
	s.SetSystem("Capacity", "40")
	s.SetSystem("Player", "Sam")
	require.NoError(t, s.Set("Flow:x", "1"))
	require.NoError(t, s.Set("Flow:name", "Robin"))
	return s
}

func TestEvalValueArithmetic(t *testing.T) {
	s := exprStore(t)
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"literal", "hello", "hello"},
		{"literal number", "42", "42"},
		{"addition", "[Flow:x] + 1", "2"},
		{"precedence", "2 + 3 * 4", "14"},
		{"subtraction", "[Capacity] - 15", "25"},
		{"division", "1 / 2", "0.5"},
		{"negative operand", "-5 + 3", "-2"},
		{"system token", "[Capacity] * 2", "80"},
		{"string concat", "[Flow:name] + [Player]", "RobinSam"},
		{"concat trims around plus", "a + b", "ab"},
		{"mixed concat", "score: + [Flow:x]", "score:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalValue(tt.raw, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The chained-increment property: [Flow:x] = 1 then [Flow:x] = [Flow:x] + 1
// must yield numeric 2, not "11".
func TestEvalValueChainedIncrement(t *testing.T) {
	s := NewMemoryStore()
	v, err := EvalValue("1", s)
	require.NoError(t, err)
	require.NoError(t, s.Set("Flow:x", v))

	v, err = EvalValue("[Flow:x] + 1", s)
	require.NoError(t, err)
	require.NoError(t, s.Set("Flow:x", v))

	got, _ := s.Get("Flow:x")
	assert.Equal(t, "2", got)
}

func TestEvalValueErrors(t *testing.T) {
	s := exprStore(t)
	tests := []struct {
		name string
		raw  string
	}{
		{"undeclared flow variable", "[Flow:missing] + 1"},
		{"non-numeric multiply", "[Player] * 2"},
		{"non-numeric subtract", "a - b"},
		{"division by zero", "1 / 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvalValue(tt.raw, s)
			assert.Error(t, err)
		})
	}
}

func TestEvalValueUnknownSystemTokenPassesThrough(t *testing.T) {
	s := NewMemoryStore()
	got, err := EvalValue("hello [Gender]", s)
	require.NoError(t, err)
	assert.Equal(t, "hello [Gender]", got)
}
