package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/kris-hansen/promptchain/utils/cache"
	"github.com/kris-hansen/promptchain/utils/config"
)

// ModelCache stores generations keyed by model fingerprint and prompt text
type ModelCache struct {
	store cache.Store
	ttl   time.Duration
}

// NewModelCache wraps a store. A nil store turns every lookup into a miss.
func NewModelCache(store cache.Store, ttl time.Duration) *ModelCache {
	return &ModelCache{store: store, ttl: ttl}
}

// CacheLookup is the outcome of GetPrompts
type CacheLookup struct {
	// Existing maps prompt index to its cached candidates
	Existing       map[int][]Generation
	Fingerprint    string
	MissingIdx     []int
	MissingPrompts []string
}

type cacheEntry struct {
	Fingerprint string       `json:"fingerprint"`
	Prompt      string       `json:"prompt"`
	Generations []Generation `json:"generations"`
}

func cacheKey(fingerprint, prompt string) string {
	return fmt.Sprintf("promptchain:%016x:%016x", xxhash.Sum64String(fingerprint), xxhash.Sum64String(prompt))
}

// GetPrompts splits prompts into cached candidates and the prompts still to be generated
func (c *ModelCache) GetPrompts(ctx context.Context, fingerprint string, prompts []string) (*CacheLookup, error) {
	lookup := &CacheLookup{
		Existing:    make(map[int][]Generation),
		Fingerprint: fingerprint,
	}

	for i, p := range prompts {
		gens, ok, err := c.get(ctx, fingerprint, p)
		if err != nil {
			return nil, err
		}
		if ok {
			lookup.Existing[i] = gens
			continue
		}
		lookup.MissingIdx = append(lookup.MissingIdx, i)
		lookup.MissingPrompts = append(lookup.MissingPrompts, p)
	}
	return lookup, nil
}

func (c *ModelCache) get(ctx context.Context, fingerprint, prompt string) ([]Generation, bool, error) {
	if c.store == nil {
		return nil, false, nil
	}
	raw, found, err := c.store.Get(ctx, cacheKey(fingerprint, prompt))
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		config.DebugLog("[Cache] Discarding unreadable entry: %v", err)
		return nil, false, nil
	}
	// hash collisions are treated as misses
	if entry.Prompt != prompt || entry.Fingerprint != fingerprint {
		return nil, false, nil
	}
	return entry.Generations, true, nil
}

// UpdateCache places each freshly generated candidate list at its original prompt
// index in existing, writes it to the store and returns the provider output.
func (c *ModelCache) UpdateCache(ctx context.Context, existing [][]Generation, fingerprint string, missingIdx []int, newResults *Result, prompts []string) (map[string]interface{}, error) {
	for i, gens := range newResults.Generations {
		if i >= len(missingIdx) {
			break
		}
		idx := missingIdx[i]
		existing[idx] = gens

		if c.store == nil {
			continue
		}
		data, err := json.Marshal(cacheEntry{Fingerprint: fingerprint, Prompt: prompts[idx], Generations: gens})
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache entry: %w", err)
		}
		if err := c.store.Set(ctx, cacheKey(fingerprint, prompts[idx]), string(data), c.ttl); err != nil {
			return nil, fmt.Errorf("cache update failed: %w", err)
		}
	}
	return newResults.Output, nil
}
