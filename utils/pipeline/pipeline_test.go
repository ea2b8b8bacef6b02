package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DefaultModel = "fake"
	cfg.Models["fake"] = config.ModelSpec{Provider: "fake"}
	cfg.Models["scripted"] = config.ModelSpec{
		Provider: "fake",
		Responses: map[string]string{
			"I send foo":          "bar",
			"I send bar and test": "You send bar and test",
		},
	}
	return cfg
}

func build(t *testing.T, yamlText string) chain.Chain {
	t.Helper()
	cfg := testConfig()
	def, err := Parse([]byte(yamlText), cfg)
	require.NoError(t, err)
	c, err := NewBuilder(cfg, nil).Build(context.Background(), def)
	require.NoError(t, err)
	t.Cleanup(c.Cancel)
	return c
}

func TestBuildModelStep(t *testing.T) {
	c := build(t, `
name: foobar
chain:
  type: model
  template: "This is a {bar}:"
`)
	values, err := chain.NewExecutor(c).Run(context.Background(), map[string]string{"bar": "baz"}, []string{"foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bar": "baz", "text": "bar"}, values)
}

func TestBuildSequential(t *testing.T) {
	c := build(t, `
chain:
  type: sequential
  steps:
    - type: model
      model: scripted
      template: "I send {foo}"
      output_key: bar
    - type: model
      model: scripted
      template: "I send {bar} and {test}"
`)
	values, err := chain.NewExecutor(c).Run(context.Background(), map[string]string{"foo": "foo", "test": "test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "You send bar and test", values["text"])
	assert.Equal(t, "bar", values["bar"])
}

func TestBuildConcat(t *testing.T) {
	c := build(t, `
chain:
  type: concat
  output_key: both
  steps:
    - type: passthrough
      from: topic
    - type: model
      template: "Tell me about {topic}"
`)
	text, err := chain.NewExecutor(c).Prompt(context.Background(), "socks")
	require.NoError(t, err)
	assert.Equal(t, "socks\nfoo", text)
}

func TestBuildMapReduce(t *testing.T) {
	c := build(t, `
chain:
  type: map_reduce
  max_tokens: 8
  map:
    type: passthrough
    from: chunk
  reduce:
    type: passthrough
    from: merged
    output_key: result
`)
	assert.Equal(t, []string{chain.MapReduceInput}, c.InputVariables())
	text, err := chain.NewExecutor(c).Prompt(context.Background(), "First sentence here. Second one, and a third!")
	require.NoError(t, err)
	assert.Equal(t, "First sentence here. Second one,\n\nand a third!", text)
}

func TestBuildMapReduceSummarize(t *testing.T) {
	c := build(t, `
chain:
  type: map_reduce
  max_tokens: 8
`)
	assert.Equal(t, "summary", c.DefaultOutputKey())
	text, err := chain.NewExecutor(c).Prompt(context.Background(), "Some text. More text.")
	require.NoError(t, err)
	assert.Equal(t, "foo", text)
}

func TestBuildSpecialized(t *testing.T) {
	c := build(t, `
chain:
  type: question_answering
`)
	assert.Equal(t, []string{"context", "question"}, c.InputVariables())
	assert.Equal(t, "answer", c.DefaultOutputKey())
}

func TestBuildTemplateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.txt"), []byte("Greet {name}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(`
chain:
  type: model
  template_file: greet.txt
  input_variables: [name]
`), 0644))

	cfg := testConfig()
	defs, err := LoadDir(dir, cfg)
	require.NoError(t, err)
	require.Contains(t, defs, "greet")
	assert.Equal(t, []string{"greet"}, Names(defs))

	c, err := NewBuilder(cfg, nil).Build(context.Background(), defs["greet"])
	require.NoError(t, err)
	defer c.Cancel()
	assert.Equal(t, []string{"name"}, c.InputVariables())
}

func TestBuildLinkMismatch(t *testing.T) {
	cfg := testConfig()
	def, err := Parse([]byte(`
chain:
  type: sequential
  steps:
    - type: model
      template: "A {x}"
    - type: model
      template: "B {y}"
`), cfg)
	require.NoError(t, err)

	_, err = NewBuilder(cfg, nil).Build(context.Background(), def)
	assert.ErrorIs(t, err, chain.ErrLinkMismatch)
}

func TestBuilderSharesModels(t *testing.T) {
	b := NewBuilder(testConfig(), nil)
	first, err := b.Model(context.Background(), "")
	require.NoError(t, err)
	second, err := b.Model(context.Background(), "fake")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = b.Model(context.Background(), "missing")
	assert.ErrorIs(t, err, errkind.InvalidOperation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		problems []string
	}{
		{
			name:     "missing type",
			yaml:     "chain:\n  template: hi\n",
			problems: []string{"chain: step has no type"},
		},
		{
			name:     "unknown type",
			yaml:     "chain:\n  type: loop\n",
			problems: []string{`unknown step type "loop"`},
		},
		{
			name:     "model without template",
			yaml:     "chain:\n  type: model\n",
			problems: []string{"model step has no template"},
		},
		{
			name:     "concat with one step",
			yaml:     "chain:\n  type: concat\n  steps:\n    - type: passthrough\n      from: a\n",
			problems: []string{"concat step needs exactly 2 steps, got 1"},
		},
		{
			name:     "map reduce missing reduce",
			yaml:     "chain:\n  type: map_reduce\n  map:\n    type: summarize\n",
			problems: []string{"map_reduce step needs both map and reduce"},
		},
		{
			name:     "unknown model",
			yaml:     "chain:\n  type: summarize\n  model: nope\n",
			problems: []string{`model "nope" not found`},
		},
		{
			name: "nested problems",
			yaml: "chain:\n  type: sequential\n  steps:\n    - type: passthrough\n    - type: model\n",
			problems: []string{
				"chain.steps[0]: passthrough step has no 'from' value",
				"chain.steps[1]: model step has no template",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), testConfig())
			require.Error(t, err)
			assert.ErrorIs(t, err, errkind.InvalidOperation)
			for _, p := range tt.problems {
				assert.Contains(t, err.Error(), p)
			}
		})
	}
}

func TestValidateWithoutConfigSkipsModels(t *testing.T) {
	result := Validate(&Definition{Chain: Step{Type: StepSummarize, Model: "anything"}}, nil)
	assert.True(t, result.Valid)
	assert.Empty(t, result.ErrorSummary())
}

func TestLoadDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	body := "name: same\nchain:\n  type: summarize\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(body), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(body), 0644))

	_, err := LoadDir(dir, testConfig())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "more than once"))
}
