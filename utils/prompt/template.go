// Package prompt implements prompt templates with {variable} placeholders.
package prompt

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/kris-hansen/promptchain/utils/errkind"
)

var (
	// ErrMissingVariable is returned by Format when a declared variable has no value
	ErrMissingVariable = fmt.Errorf("%w: missing prompt variable", errkind.InvalidArgument)
	// ErrVariableMismatch is returned when declared variables do not match the template
	ErrVariableMismatch = fmt.Errorf("%w: template and input variables are different", errkind.InvalidOperation)
)

// segment is either literal text or a variable reference
type segment struct {
	text     string
	variable bool
}

// Template is a prompt with {name} placeholders
type Template struct {
	segments       []segment
	inputVariables []string
}

// New builds a template, declaring every {name} placeholder as an input variable
// in order of first appearance. Doubled braces are literal braces.
func New(template string) *Template {
	t := &Template{segments: parse(template)}
	for _, seg := range t.segments {
		if seg.variable && !slices.Contains(t.inputVariables, seg.text) {
			t.inputVariables = append(t.inputVariables, seg.text)
		}
	}
	return t
}

// NewWithVariables builds a template and checks that inputVariables lists exactly the
// template's placeholders in the same order.
func NewWithVariables(template string, inputVariables []string) (*Template, error) {
	t := New(template)
	if !slices.Equal(t.inputVariables, inputVariables) {
		return nil, fmt.Errorf("%w: template declares %v, got %v", ErrVariableMismatch, t.inputVariables, inputVariables)
	}
	return t, nil
}

// FromExamples joins prefix, examples and suffix with separator into a template.
// Empty prefix or suffix are left out.
func FromExamples(examples []string, suffix string, inputVariables []string, prefix string, separator string) (*Template, error) {
	if separator == "" {
		separator = "\n\n"
	}

	var sb strings.Builder
	if strings.TrimSpace(prefix) != "" {
		sb.WriteString(prefix)
		sb.WriteString(separator)
	}
	sb.WriteString(strings.Join(examples, separator))
	if strings.TrimSpace(suffix) != "" {
		sb.WriteString(separator)
		sb.WriteString(suffix)
	}

	return NewWithVariables(sb.String(), inputVariables)
}

// FromFile loads a template from a file
func FromFile(path string, inputVariables []string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return NewWithVariables(string(data), inputVariables)
}

// Template returns the template text with escaped braces resolved
func (t *Template) Template() string {
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.variable {
			sb.WriteString("{" + seg.text + "}")
			continue
		}
		sb.WriteString(seg.text)
	}
	return sb.String()
}

// InputVariables returns the declared variables
func (t *Template) InputVariables() []string {
	return slices.Clone(t.inputVariables)
}

// Format substitutes every declared variable. Values for undeclared names are ignored.
func (t *Template) Format(values map[string]string) (string, error) {
	var missing []string
	for _, name := range t.inputVariables {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(missing, ", "))
	}

	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.variable {
			sb.WriteString(values[seg.text])
			continue
		}
		sb.WriteString(seg.text)
	}
	return sb.String(), nil
}

// parse splits a template into literal and variable segments. "{{" and "}}" are
// literal braces, "{name}" is a variable, an unterminated or empty brace is literal.
func parse(s string) []segment {
	var segments []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case strings.HasPrefix(s[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case s[i] == '{':
			end := strings.IndexByte(s[i+1:], '}')
			if end <= 0 {
				lit.WriteByte('{')
				i++
				continue
			}
			flush()
			segments = append(segments, segment{text: s[i+1 : i+1+end], variable: true})
			i += end + 2
		default:
			lit.WriteByte(s[i])
			i++
		}
	}
	flush()
	return segments
}
