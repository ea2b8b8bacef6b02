package chain

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/kris-hansen/promptchain/utils/models"
)

// PromptTemplate formats a prompt from message values
type PromptTemplate interface {
	Format(values map[string]string) (string, error)
	InputVariables() []string
}

// ModelChain formats its template against each message, calls the model and
// stores the trimmed first candidate under its output key.
type ModelChain struct {
	*stage
	template  PromptTemplate
	llm       models.LLM
	outputKey string
	in        *block
}

// NewModelChain creates a model stage. The output key defaults to "text" and must
// not be one of the template's variables.
func NewModelChain(template PromptTemplate, llm models.LLM, opts ...Option) (*ModelChain, error) {
	o := buildOptions(opts)
	if slices.Contains(template.InputVariables(), o.outputKey) {
		return nil, fmt.Errorf("%w: output key %q is also a prompt input variable", ErrInvalidOperation, o.outputKey)
	}

	c := &ModelChain{
		stage:     newStage("ModelChain", o),
		template:  template,
		llm:       llm,
		outputKey: o.outputKey,
	}
	c.in = c.addBlock("ModelChain", messageHandler(c.process))
	return c, nil
}

// Input returns the stage's input port
func (c *ModelChain) Input() Inlet { return c.in }

// Output returns the stage's output port
func (c *ModelChain) Output() *Outlet { return c.in.out }

// InputVariables returns the template's variables
func (c *ModelChain) InputVariables() []string {
	return slices.Clone(c.template.InputVariables())
}

// DefaultOutputKey returns the key the model's answer is stored under
func (c *ModelChain) DefaultOutputKey() string { return c.outputKey }

func (c *ModelChain) process(ctx context.Context, msg *Message) (*Message, error) {
	if _, exists := msg.Values[c.outputKey]; exists {
		return nil, fmt.Errorf("%w: message already has a value for output key %q", ErrInvalidArgument, c.outputKey)
	}

	text, err := c.template.Format(msg.Values)
	if err != nil {
		log.Printf("[ERROR][ModelChain] %s prompt: %v\n", modelKind(c.llm), err)
		return nil, err
	}

	res, err := c.llm.Generate(ctx, []string{text}, msg.Stops)
	if err != nil {
		log.Printf("[ERROR][ModelChain] %s model failed: %v\n", modelKind(c.llm), err)
		return nil, err
	}
	answer, err := models.FirstText(res)
	if err != nil {
		return nil, err
	}

	out := msg.Clone()
	out.Values[c.outputKey] = answer
	return out, nil
}

func modelKind(llm models.LLM) string {
	if k, ok := llm.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", llm)
}
