// Package pipeline loads chain definitions from YAML and builds chain graphs from them.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
)

// Step types
const (
	StepModel             = "model"
	StepSequential        = "sequential"
	StepConcat            = "concat"
	StepMapReduce         = "map_reduce"
	StepSummarize         = "summarize"
	StepQuestionAnswering = "question_answering"
	StepConversation      = "conversation"
	StepPassthrough       = "passthrough"
)

// Definition is one chain definition file
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Chain       Step   `yaml:"chain"`

	// dir resolves template_file paths
	dir string
}

// Step describes one stage of a chain. Which fields apply depends on Type.
type Step struct {
	Type           string   `yaml:"type"`
	Model          string   `yaml:"model,omitempty"`    // Named model from the configuration, default model when empty
	Template       string   `yaml:"template,omitempty"` // Prompt text with {variable} placeholders
	TemplateFile   string   `yaml:"template_file,omitempty"`
	InputVariables []string `yaml:"input_variables,omitempty"` // Checked against the template when given
	OutputKey      string   `yaml:"output_key,omitempty"`
	From           string   `yaml:"from,omitempty"` // Value copied by a passthrough step

	Steps []Step `yaml:"steps,omitempty"` // Members of sequential and concat steps

	Map       *Step `yaml:"map,omitempty"`
	Reduce    *Step `yaml:"reduce,omitempty"`
	MaxTokens int   `yaml:"max_tokens,omitempty"`
	MaxRounds int   `yaml:"max_rounds,omitempty"`
}

// Parse decodes and validates a definition. Model names are checked against cfg
// when it is not nil.
func Parse(data []byte, cfg *config.Config) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse chain definition: %w", err)
	}
	if result := Validate(&def, cfg); !result.Valid {
		return nil, fmt.Errorf("%w: invalid chain definition:\n%s", errkind.InvalidOperation, result.ErrorSummary())
	}
	return &def, nil
}

// Load reads a definition file. The name defaults to the file name without extension.
func Load(path string, cfg *config.Config) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain definition: %w", err)
	}
	def, err := Parse(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	def.dir = filepath.Dir(path)
	return def, nil
}

// LoadDir reads every .yaml and .yml file in dir, keyed by definition name
func LoadDir(dir string, cfg *config.Config) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains directory: %w", err)
	}

	defs := make(map[string]*Definition)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := Load(filepath.Join(dir, entry.Name()), cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("chain %q is defined more than once in %s", def.Name, dir)
		}
		defs[def.Name] = def
		config.DebugLog("Loaded chain %s from %s", def.Name, entry.Name())
	}
	return defs, nil
}

// Names returns the sorted definition names
func Names(defs map[string]*Definition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
