package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotOpener(t *testing.T) {
	t.Parallel()

	b := newBot()

	phrase, conceded := b.nextMove("", map[string]struct{}{})

	require.False(t, conceded)
	assert.Contains(t, botOpeners, phrase)

	tokens := strings.Fields(phrase)
	assert.Len(t, tokens, 2)
	assert.True(t, isVietnamese(phrase))
}

func TestBotPrefersLearnedContinuations(t *testing.T) {
	t.Parallel()

	b := newBot()
	b.observe("trời xanh")

	phrase, conceded := b.nextMove("trời", map[string]struct{}{})

	require.False(t, conceded)
	assert.Equal(t, "trời xanh", phrase)
}

func TestBotSkipsUsedLearnedContinuations(t *testing.T) {
	t.Parallel()

	b := newBot()
	b.observe("trời xanh")

	used := map[string]struct{}{"trời xanh": {}}
	phrase, conceded := b.nextMove("trời", used)

	require.False(t, conceded)
	assert.NotEqual(t, "trời xanh", phrase)
	assert.True(t, strings.HasPrefix(phrase, "trời "))
}

func TestBotTemplatedCandidatesSatisfyChain(t *testing.T) {
	t.Parallel()

	b := newBot()

	for range 20 {
		phrase, conceded := b.nextMove("sông", map[string]struct{}{})
		require.False(t, conceded)
		assert.True(t, strings.HasPrefix(phrase, "sông "))
		assert.True(t, isVietnamese(phrase))
		assert.Len(t, strings.Fields(phrase), 2)
	}
}

func TestBotConcedesWhenNoCandidateRemains(t *testing.T) {
	t.Parallel()

	b := newBot()

	// Exhaust every candidate the templated strategy could produce.
	used := make(map[string]struct{})
	for _, word := range botVocabulary {
		used["trời "+word] = struct{}{}
	}

	phrase, conceded := b.nextMove("trời", used)

	assert.True(t, conceded)
	assert.True(t, strings.HasPrefix(phrase, "trời"))
}

func TestBotForgetClearsLearnedPairs(t *testing.T) {
	t.Parallel()

	b := newBot()
	b.observe("trời xanh")
	b.forget()

	used := make(map[string]struct{})
	for _, word := range botVocabulary {
		used["trời "+word] = struct{}{}
	}

	_, conceded := b.nextMove("trời", used)
	assert.True(t, conceded)
}

func TestBotObserveIgnoresMalformedPhrases(t *testing.T) {
	t.Parallel()

	b := newBot()
	b.observe("trời")
	b.observe("một hai ba")

	assert.Empty(t, b.pairs)
}
