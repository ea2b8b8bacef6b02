package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kris-hansen/promptchain/utils/models"
	"github.com/kris-hansen/promptchain/utils/prompt"
)

func TestConcatenateChain(t *testing.T) {
	fake := models.NewFakeProvider(map[string]string{
		"Name a company making colorful socks": "Socktastic",
		"Write a slogan for colorful socks":    "Feet first, fun always.",
	})
	name, err := NewModelChain(prompt.New("Name a company making {product}"), fake)
	require.NoError(t, err)
	slogan, err := NewModelChain(prompt.New("Write a slogan for {product}"), fake)
	require.NoError(t, err)

	c, err := NewConcatenateChain(name, slogan, WithOutputKey("result"))
	require.NoError(t, err)
	defer c.Cancel()

	assert.Equal(t, []string{"product"}, c.InputVariables())
	text, err := NewExecutor(c).Prompt(context.Background(), "colorful socks")
	require.NoError(t, err)
	assert.Equal(t, "Socktastic\nFeet first, fun always.", text)
}

func TestConcatenateChainPairsById(t *testing.T) {
	upper, err := NewTransformChain([]string{"in"}, func(_ context.Context, values map[string]string) (string, error) {
		return strings.ToUpper(values["in"]), nil
	})
	require.NoError(t, err)
	reverse, err := NewTransformChain([]string{"in"}, func(_ context.Context, values map[string]string) (string, error) {
		return reverseString(values["in"]), nil
	})
	require.NoError(t, err)

	c, err := NewConcatenateChain(upper, reverse, WithOutputKey("joined"))
	require.NoError(t, err)
	defer c.Cancel()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("req%02d", i)
			text, err := NewExecutor(c).Prompt(context.Background(), input)
			if assert.NoError(t, err) {
				assert.Equal(t, strings.ToUpper(input)+"\n"+reverseString(input), text)
			}
		}(i)
	}
	wg.Wait()
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func TestConcatenateChainBranchFault(t *testing.T) {
	bad := errors.New("branch failed")
	ok := copyValue(t, "in", "one")
	failing, err := NewTransformChain([]string{"in"}, func(_ context.Context, values map[string]string) (string, error) {
		if values["in"] == "fail" {
			return "", bad
		}
		return values["in"], nil
	}, WithOutputKey("two"))
	require.NoError(t, err)

	c, err := NewConcatenateChain(ok, failing)
	require.NoError(t, err)
	defer c.Cancel()
	exec := NewExecutor(c)

	_, err = exec.Prompt(context.Background(), "fail")
	assert.ErrorIs(t, err, bad)

	text, err := exec.Prompt(context.Background(), "fine")
	require.NoError(t, err)
	assert.Equal(t, "fine\nfine", text)
}

func TestConcatenateChainSecondBranchRejects(t *testing.T) {
	one := copyValue(t, "in", "a")
	two := copyValue(t, "in", "b")
	c, err := NewConcatenateChain(one, two)
	require.NoError(t, err)
	defer c.Cancel()

	two.Input().Complete(nil)
	_, err = NewExecutor(c).Prompt(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCompleted)

	// the first branch's answer must not stay parked waiting for its pair
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 0 && len(c.failed) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConcatenateChainOutputKeyCollision(t *testing.T) {
	_, err := NewConcatenateChain(copyValue(t, "text", "a"), copyValue(t, "in", "b"))
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestConcatenateChainCancel(t *testing.T) {
	one := copyValue(t, "in", "a")
	two := copyValue(t, "in", "b")
	c, err := NewConcatenateChain(one, two)
	require.NoError(t, err)

	c.Cancel()
	_, err = NewExecutor(c).Prompt(context.Background(), "x")
	assert.ErrorIs(t, err, ErrCancelled)
}
