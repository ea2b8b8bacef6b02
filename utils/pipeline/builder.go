package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kris-hansen/promptchain/utils/cache"
	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/errkind"
	"github.com/kris-hansen/promptchain/utils/models"
	"github.com/kris-hansen/promptchain/utils/prompt"
)

// OpenModelCache opens the configured cache backend. The "none" backend yields a
// nil cache, so models asking for caching fail with models.ErrCacheUnavailable.
func OpenModelCache(ctx context.Context, cc config.CacheConfig) (*models.ModelCache, cache.Store, error) {
	store, err := cache.Open(ctx, cache.Options{
		Backend:  cc.Backend,
		Addr:     cc.Addr,
		Password: cc.Password,
		DB:       cc.DB,
		DSN:      cc.DSN,
	})
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	return models.NewModelCache(store, cc.TTL), store, nil
}

// Builder turns definitions into chain graphs, resolving model names against the
// configuration. Models are created once per name and shared between graphs.
type Builder struct {
	cfg   *config.Config
	cache *models.ModelCache

	mu   sync.Mutex
	llms map[string]*models.Model
}

// NewBuilder creates a builder. mc may be nil.
func NewBuilder(cfg *config.Config, mc *models.ModelCache) *Builder {
	return &Builder{cfg: cfg, cache: mc, llms: make(map[string]*models.Model)}
}

// Model returns the named model, or the default model when name is empty
func (b *Builder) Model(ctx context.Context, name string) (models.LLM, error) {
	if name == "" {
		name = b.cfg.DefaultModel
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if llm, ok := b.llms[name]; ok {
		return llm, nil
	}

	spec, err := b.cfg.GetModel(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.InvalidOperation, err)
	}
	llm, err := models.NewFromSpec(ctx, spec, b.cache)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	config.DebugLog("Created model %s (%s)", name, llm.Kind())
	b.llms[name] = llm
	return llm, nil
}

// Build creates the graph for def. opts apply to the outermost chain; nested stages
// share its lifetime.
func (b *Builder) Build(ctx context.Context, def *Definition, opts ...chain.Option) (chain.Chain, error) {
	bc := &buildContext{Builder: b, dir: def.dir}
	c, err := bc.step(ctx, &def.Chain, opts)
	if err != nil {
		bc.cancelAll()
		return nil, fmt.Errorf("chain %s: %w", def.Name, err)
	}
	return c, nil
}

// buildContext tracks the stages of one graph so a failed build can stop them
type buildContext struct {
	*Builder
	dir   string
	built []chain.Chain
}

func (bc *buildContext) cancelAll() {
	for _, c := range bc.built {
		c.Cancel()
	}
}

func (bc *buildContext) keep(c chain.Chain, err error) (chain.Chain, error) {
	if err != nil {
		return nil, err
	}
	bc.built = append(bc.built, c)
	return c, nil
}

func (bc *buildContext) step(ctx context.Context, s *Step, opts []chain.Option) (chain.Chain, error) {
	if s.OutputKey != "" {
		opts = append(slices.Clip(opts), chain.WithOutputKey(s.OutputKey))
	}

	switch s.Type {
	case StepModel:
		tmpl, err := bc.template(s)
		if err != nil {
			return nil, err
		}
		llm, err := bc.Model(ctx, s.Model)
		if err != nil {
			return nil, err
		}
		return bc.keep(chain.NewModelChain(tmpl, llm, opts...))

	case StepSummarize, StepQuestionAnswering, StepConversation:
		llm, err := bc.Model(ctx, s.Model)
		if err != nil {
			return nil, err
		}
		switch s.Type {
		case StepSummarize:
			return bc.keep(chain.NewSummarizeChain(llm, opts...))
		case StepQuestionAnswering:
			return bc.keep(chain.NewQuestionAnsweringChain(llm, opts...))
		default:
			return bc.keep(chain.NewConversationChain(llm, opts...))
		}

	case StepPassthrough:
		from := s.From
		return bc.keep(chain.NewTransformChain([]string{from}, func(_ context.Context, values map[string]string) (string, error) {
			return values[from], nil
		}, opts...))

	case StepSequential:
		members, err := bc.members(ctx, s.Steps)
		if err != nil {
			return nil, err
		}
		return bc.keep(chain.NewSequentialChain(members, opts...))

	case StepConcat:
		if len(s.Steps) != 2 {
			return nil, fmt.Errorf("%w: concat step needs exactly 2 steps", errkind.InvalidOperation)
		}
		members, err := bc.members(ctx, s.Steps)
		if err != nil {
			return nil, err
		}
		return bc.keep(chain.NewConcatenateChain(members[0], members[1], opts...))

	case StepMapReduce:
		cfg := chain.MapReduceConfig{MaxTokens: s.MaxTokens, MaxRounds: s.MaxRounds}
		if s.Map == nil && s.Reduce == nil {
			llm, err := bc.Model(ctx, s.Model)
			if err != nil {
				return nil, err
			}
			return bc.keep(chain.NewMapReduceSummarizeChain(llm, llm, cfg, opts...))
		}
		if s.Map == nil || s.Reduce == nil {
			return nil, fmt.Errorf("%w: map_reduce step needs both map and reduce", errkind.InvalidOperation)
		}
		mapChain, err := bc.step(ctx, s.Map, nil)
		if err != nil {
			return nil, err
		}
		reduceChain, err := bc.step(ctx, s.Reduce, nil)
		if err != nil {
			return nil, err
		}
		return bc.keep(chain.NewMapReduceChain(mapChain, reduceChain, cfg, opts...))

	default:
		return nil, fmt.Errorf("%w: unknown step type %q", errkind.InvalidOperation, s.Type)
	}
}

func (bc *buildContext) members(ctx context.Context, steps []Step) ([]chain.Chain, error) {
	members := make([]chain.Chain, 0, len(steps))
	for i := range steps {
		c, err := bc.step(ctx, &steps[i], nil)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		members = append(members, c)
	}
	return members, nil
}

func (bc *buildContext) template(s *Step) (*prompt.Template, error) {
	text := s.Template
	if s.TemplateFile != "" {
		path := s.TemplateFile
		if !filepath.IsAbs(path) && bc.dir != "" {
			path = filepath.Join(bc.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		text = string(data)
	}
	if len(s.InputVariables) > 0 {
		return prompt.NewWithVariables(text, s.InputVariables)
	}
	return prompt.New(text), nil
}
