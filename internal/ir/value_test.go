package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalValue(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"parameter slot", nil, "null"},
		{"null literal", Null{}, "null"},
		{"string", String("bob"), `"bob"`},
		{"int", Int(7), "7"},
		{"decimal", MustDecimal("0.10"), `"0.1"`},
		{"bool", Bool(false), "false"},
		{"array", Array{String("a"), Int(2)}, `["a",2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := MarshalValue(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(b))
		})
	}
}

func TestValuesInsideStructsUseTheirMarshalers(t *testing.T) {
	b, err := json.Marshal(struct {
		Values []Value `json:"values"`
	}{Values: []Value{Null{}, Array{Bool(true)}, MustDecimal("3.25")}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"values":[null,[true],"3.25"]}`, string(b))
}

func TestNewDecimalRejectsGarbage(t *testing.T) {
	_, err := NewDecimal("1.2.3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decimal literal")
}

func TestNegated(t *testing.T) {
	v, ok := Negated(Bool(true))
	require.True(t, ok)
	assert.Equal(t, Bool(false), v)

	v, ok = Negated(Int(1))
	assert.False(t, ok)
	assert.Equal(t, Int(1), v)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "?", FormatValue(nil))
	assert.Equal(t, "('a', 1)", FormatValue(Array{String("a"), Int(1)}))
	assert.Equal(t, "TRUE", FormatValue(Bool(true)))
	assert.Equal(t, "NULL", FormatValue(Null{}))
}
