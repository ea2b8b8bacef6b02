package pipeline

import (
	"fmt"
	"strings"

	"github.com/kris-hansen/promptchain/utils/config"
)

// ValidationError is a single problem found in a definition
type ValidationError struct {
	Path    string // Location of the step, e.g. chain.steps[1].map
	Message string
	Fix     string // Suggested fix
}

func (e ValidationError) String() string {
	if e.Fix == "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s. %s", e.Path, e.Message, e.Fix)
}

// ValidationResult collects every problem found in a definition
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ErrorSummary returns the numbered list of problems
func (r ValidationResult) ErrorSummary() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.Errors))
	for i, err := range r.Errors {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, err.String()))
	}
	return strings.Join(lines, "\n")
}

// Validate checks the structure of a definition before anything is built.
// Named models are checked against cfg when it is not nil.
func Validate(def *Definition, cfg *config.Config) ValidationResult {
	v := &validator{cfg: cfg}
	v.step("chain", &def.Chain)
	return ValidationResult{Valid: len(v.errs) == 0, Errors: v.errs}
}

type validator struct {
	cfg  *config.Config
	errs []ValidationError
}

func (v *validator) add(path, message, fix string) {
	v.errs = append(v.errs, ValidationError{Path: path, Message: message, Fix: fix})
}

func (v *validator) step(path string, s *Step) {
	switch s.Type {
	case StepModel:
		if s.Template == "" && s.TemplateFile == "" {
			v.add(path, "model step has no template", "Add 'template' or 'template_file'")
		}
		if s.Template != "" && s.TemplateFile != "" {
			v.add(path, "model step has both template and template_file", "Keep only one of them")
		}
		v.model(path, s.Model)

	case StepSummarize, StepQuestionAnswering, StepConversation:
		v.model(path, s.Model)

	case StepSequential:
		if len(s.Steps) == 0 {
			v.add(path, "sequential step has no steps", "List the stages under 'steps'")
		}
		v.children(path, s.Steps)

	case StepConcat:
		if len(s.Steps) != 2 {
			v.add(path, fmt.Sprintf("concat step needs exactly 2 steps, got %d", len(s.Steps)), "List two stages under 'steps'")
		}
		v.children(path, s.Steps)

	case StepMapReduce:
		switch {
		case s.Map == nil && s.Reduce == nil:
			// summarizes with the step's model
			v.model(path, s.Model)
		case s.Map == nil || s.Reduce == nil:
			v.add(path, "map_reduce step needs both map and reduce", "Add the missing stage, or drop both to summarize")
		default:
			v.step(path+".map", s.Map)
			v.step(path+".reduce", s.Reduce)
		}
		if s.MaxTokens < 0 || s.MaxRounds < 0 {
			v.add(path, "max_tokens and max_rounds must not be negative", "")
		}

	case StepPassthrough:
		if s.From == "" {
			v.add(path, "passthrough step has no 'from' value", "Name the input value to copy")
		}
		if s.From != "" && s.From == s.OutputKey {
			v.add(path, "passthrough 'from' and 'output_key' are the same", "Choose a different output_key")
		}

	case "":
		v.add(path, "step has no type", fmt.Sprintf("Set 'type' to one of %s", strings.Join(stepTypes, ", ")))

	default:
		v.add(path, fmt.Sprintf("unknown step type %q", s.Type), fmt.Sprintf("Use one of %s", strings.Join(stepTypes, ", ")))
	}
}

func (v *validator) children(path string, steps []Step) {
	for i := range steps {
		v.step(fmt.Sprintf("%s.steps[%d]", path, i), &steps[i])
	}
}

func (v *validator) model(path, name string) {
	if v.cfg == nil {
		return
	}
	if _, err := v.cfg.GetModel(name); err != nil {
		v.add(path, err.Error(), "Define the model under 'models' in the configuration file")
	}
}

var stepTypes = []string{
	StepModel, StepSequential, StepConcat, StepMapReduce,
	StepSummarize, StepQuestionAnswering, StepConversation, StepPassthrough,
}
