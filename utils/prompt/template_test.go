package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExtractsVariables(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     []string
	}{
		{"single", "This is a {bar}:", []string{"bar"}},
		{"ordered and distinct", "I send {bar} and {test} then {bar}", []string{"bar", "test"}},
		{"none", "no variables here", nil},
		{"escaped braces", "json: {{\"key\": {value}}}", []string{"value"}},
		{"empty braces ignored", "odd {} template {x}", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.vars, New(tt.template).InputVariables())
		})
	}
}

func TestFormat(t *testing.T) {
	tmpl := New("This is a {bar}:")
	out, err := tmpl.Format(map[string]string{"bar": "baz", "extra": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "This is a baz:", out)
}

func TestFormatEscapes(t *testing.T) {
	tmpl := New("{{literal}} {value} }}")
	out, err := tmpl.Format(map[string]string{"value": "{value}"})
	require.NoError(t, err)
	assert.Equal(t, "{literal} {value} }", out)
	assert.Equal(t, "{literal} {value} }", tmpl.Template())
}

func TestFormatMissingVariable(t *testing.T) {
	tmpl := New("I send {bar} and {test}")
	_, err := tmpl.Format(map[string]string{"bar": "x"})
	require.ErrorIs(t, err, ErrMissingVariable)
	assert.Contains(t, err.Error(), "test")
}

func TestNewWithVariables(t *testing.T) {
	_, err := NewWithVariables("What is a good name for a company that makes {product}?", []string{"product"})
	require.NoError(t, err)

	_, err = NewWithVariables("{a} {b}", []string{"b", "a"})
	assert.ErrorIs(t, err, ErrVariableMismatch)
}

func TestFromExamples(t *testing.T) {
	tmpl, err := FromExamples(
		[]string{"Q: 1+1\nA: 2", "Q: 2+2\nA: 4"},
		"Q: {question}\nA:",
		[]string{"question"},
		"Answer the arithmetic question.",
		"",
	)
	require.NoError(t, err)

	out, err := tmpl.Format(map[string]string{"question": "3+3"})
	require.NoError(t, err)
	assert.Equal(t, "Answer the arithmetic question.\n\nQ: 1+1\nA: 2\n\nQ: 2+2\nA: 4\n\nQ: 3+3\nA:", out)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Summarize {text}"), 0644))

	tmpl, err := FromFile(path, []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, tmpl.InputVariables())

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}
