package chain

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kris-hansen/promptchain/utils/config"
)

const (
	// MapReduceInput is the single input variable of a map-reduce chain
	MapReduceInput = "input_text"
	// DefaultMaxTokens sizes chunks at four characters per token
	DefaultMaxTokens = 1000
	// DefaultMaxRounds bounds how often merged text may be sent back through the map phase
	DefaultMaxRounds = 5

	posKey = "pos"
)

// MapReduceConfig tunes a map-reduce chain. Zero values select the defaults.
type MapReduceConfig struct {
	MaxTokens int
	MaxRounds int
	// Chunk splits the input text. Defaults to SplitIntoChunks at MaxTokens*4 characters.
	Chunk func(text string) []string
	// Sort reorders the mapped results. Defaults to keeping chunk order.
	Sort func(items []string) []string
	// Merge joins the mapped results. Defaults to joining with a blank line.
	Merge func(items []string) string
	// Fit decides whether merged text can go to the reduce stage. Defaults to always.
	Fit func(merged string) bool
}

func (cfg MapReduceConfig) withDefaults() MapReduceConfig {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Chunk == nil {
		limit := cfg.MaxTokens * 4
		cfg.Chunk = func(text string) []string { return SplitIntoChunks(text, limit) }
	}
	if cfg.Sort == nil {
		cfg.Sort = func(items []string) []string { return items }
	}
	if cfg.Merge == nil {
		cfg.Merge = func(items []string) string { return strings.Join(items, "\n\n") }
	}
	if cfg.Fit == nil {
		cfg.Fit = func(string) bool { return true }
	}
	return cfg
}

// batch collects the mapped chunks of one request
type batch struct {
	expected int
	received int
	results  map[int]string
	failed   bool
}

// MapReduceChain splits long text into chunks, maps every chunk through one stage,
// merges the results and reduces them through another. Merged text that does not
// fit the reduce stage goes round the map phase again, at most MaxRounds times.
type MapReduceChain struct {
	*stage
	mapChain    Chain
	reduceChain Chain
	cfg         MapReduceConfig

	mapPhase *block
	collect  *block
	output   *block

	mu      sync.Mutex
	batches map[uuid.UUID]*batch
	rounds  map[uuid.UUID]int
}

// NewMapReduceChain wires mapChain and reduceChain. Each must declare at least one
// input variable; the first one receives the chunk or the merged text.
func NewMapReduceChain(mapChain, reduceChain Chain, cfg MapReduceConfig, opts ...Option) (*MapReduceChain, error) {
	if len(mapChain.InputVariables()) == 0 || len(reduceChain.InputVariables()) == 0 {
		return nil, fmt.Errorf("%w: map and reduce stages need an input variable", ErrInvalidOperation)
	}
	if mapChain.InputVariables()[0] == posKey || mapChain.DefaultOutputKey() == posKey {
		return nil, fmt.Errorf("%w: %q is reserved for chunk positions", ErrInvalidOperation, posKey)
	}
	if mapChain.Output().Linked() || reduceChain.Output().Linked() {
		return nil, ErrAlreadyLinked
	}

	c := &MapReduceChain{
		stage:       newStage("MapReduceChain", buildOptions(opts)),
		mapChain:    mapChain,
		reduceChain: reduceChain,
		cfg:         cfg.withDefaults(),
		batches:     make(map[uuid.UUID]*batch),
		rounds:      make(map[uuid.UUID]int),
	}
	c.mapPhase = c.addBlock("MapReduceChain.map", c.split)
	c.collect = c.addBlock("MapReduceChain.collect", c.gather)
	c.output = c.addBlock("MapReduceChain.output", func(_ context.Context, p Packet, emit func(Packet)) { emit(p) })
	c.addChild(mapChain)
	c.addChild(reduceChain)

	links := []struct {
		from *Outlet
		to   Inlet
	}{
		{c.mapPhase.out, mapChain.Input()},
		{mapChain.Output(), c.collect},
		{c.collect.out, reduceChain.Input()},
		{reduceChain.Output(), c.output},
	}
	for _, l := range links {
		if err := l.from.LinkTo(l.to); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Input returns the map phase input
func (c *MapReduceChain) Input() Inlet { return c.mapPhase }

// Output returns the reduce stage's results
func (c *MapReduceChain) Output() *Outlet { return c.output.out }

// InputVariables returns the single full-text input
func (c *MapReduceChain) InputVariables() []string { return []string{MapReduceInput} }

// DefaultOutputKey returns the reduce stage's output key
func (c *MapReduceChain) DefaultOutputKey() string { return c.reduceChain.DefaultOutputKey() }

func (c *MapReduceChain) fault(p Packet, err error) Packet {
	c.mu.Lock()
	delete(c.rounds, p.Message.ID)
	c.mu.Unlock()
	return Packet{Message: p.Message, Err: err}
}

// split is the map phase: one message in, one message per chunk out
func (c *MapReduceChain) split(_ context.Context, p Packet, emit func(Packet)) {
	if p.Err != nil {
		emit(p)
		return
	}
	msg := p.Message
	text, ok := msg.Values[MapReduceInput]
	if !ok {
		emit(c.fault(p, fmt.Errorf("%w: missing input value %q", ErrInvalidArgument, MapReduceInput)))
		return
	}

	c.mu.Lock()
	round := c.rounds[msg.ID] + 1
	c.rounds[msg.ID] = round
	c.mu.Unlock()
	if round > c.cfg.MaxRounds {
		emit(c.fault(p, fmt.Errorf("%w: merged text still too large after %d rounds", ErrTooManyRounds, c.cfg.MaxRounds)))
		return
	}

	chunks := c.cfg.Chunk(text)
	if len(chunks) == 0 {
		config.DebugLog("[MapReduceChain] Nothing to summarize for %s", msg.ID)
		c.mu.Lock()
		delete(c.rounds, msg.ID)
		c.mu.Unlock()
		out := msg.Clone()
		out.Values[c.DefaultOutputKey()] = ""
		if err := c.output.Post(Packet{Message: out}); err != nil {
			emit(Packet{Message: msg, Err: err})
		}
		return
	}

	config.DebugLog("[MapReduceChain] Round %d for %s: %d chunks", round, msg.ID, len(chunks))
	c.mu.Lock()
	c.batches[msg.ID] = &batch{expected: len(chunks), results: make(map[int]string, len(chunks))}
	c.mu.Unlock()

	mapInput := c.mapChain.InputVariables()[0]
	for i, chunk := range chunks {
		emit(Packet{Message: msg.derive(map[string]string{
			mapInput: chunk,
			posKey:   strconv.Itoa(i),
		})})
	}
}

// gather buffers mapped chunks until the whole batch has arrived, then merges them
func (c *MapReduceChain) gather(_ context.Context, p Packet, emit func(Packet)) {
	id := p.Message.ID

	c.mu.Lock()
	b, ok := c.batches[id]
	if !ok {
		c.mu.Unlock()
		if p.Err != nil {
			emit(p)
		}
		return
	}
	b.received++
	if b.received >= b.expected {
		delete(c.batches, id)
	}
	if b.failed {
		c.mu.Unlock()
		return
	}
	if p.Err != nil {
		b.failed = true
		delete(c.rounds, id)
		c.mu.Unlock()
		emit(p)
		return
	}

	pos, err := strconv.Atoi(p.Message.Values[posKey])
	if err != nil {
		pos = b.received - 1
	}
	b.results[pos] = p.Message.Values[c.mapChain.DefaultOutputKey()]
	if b.received < b.expected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	positions := make([]int, 0, len(b.results))
	for pos := range b.results {
		positions = append(positions, pos)
	}
	slices.Sort(positions)
	items := make([]string, 0, len(positions))
	for _, pos := range positions {
		items = append(items, b.results[pos])
	}

	merged := c.cfg.Merge(c.cfg.Sort(items))
	if c.cfg.Fit(merged) {
		c.mu.Lock()
		delete(c.rounds, id)
		c.mu.Unlock()
		emit(Packet{Message: p.Message.derive(map[string]string{
			c.reduceChain.InputVariables()[0]: merged,
		})})
		return
	}

	config.DebugLog("[MapReduceChain] Merged text for %s does not fit, mapping again", id)
	again := p.Message.derive(map[string]string{MapReduceInput: merged})
	if err := c.mapPhase.Post(Packet{Message: again}); err != nil {
		emit(c.fault(p, err))
	}
}
