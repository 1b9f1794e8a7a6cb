package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		op        Operator
		comparand string
		exists    bool
		want      bool
	}{
		{"equals strings", "abc", OpEquals, "abc", true, true},
		{"equals numeric forms", "5", OpEquals, "5.0", true, true},
		{"equals mismatch", "abc", OpEquals, "abd", true, false},
		{"not_equals", "abc", OpNotEquals, "abd", true, true},
		{"greater", "10", OpGreater, "9.5", true, true},
		{"greater false", "9", OpGreater, "10", true, false},
		{"greater non-numeric is false", "abc", OpGreater, "1", true, false},
		{"less", "3", OpLess, "4", true, true},
		{"less non-numeric is false", "3", OpLess, "many", true, false},
		{"contains", "hello world", OpContains, "lo wo", true, true},
		{"contains false", "hello", OpContains, "xyz", true, false},
		{"exists ignores comparand", "", OpExists, "anything", true, true},
		{"exists false", "", OpExists, "", false, false},
		{"not_exists", "", OpNotExists, "ignored", false, true},
		{"not_exists false", "v", OpNotExists, "", true, false},
		{"missing variable never equals", "", OpEquals, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateCondition(tt.value, tt.op, tt.comparand, tt.exists)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidOperator(t *testing.T) {
	assert.True(t, ValidOperator(OpEquals))
	assert.False(t, ValidOperator(Operator("spaceship")))
}
