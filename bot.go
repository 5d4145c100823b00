package main

import (
	"math/rand/v2"
	"strings"
)

const (
	botPlayerID    = "bot"
	botDisplayName = "🤖 Bot"

	// Attempts each strategy gets before falling through to the next.
	botRetryLimit = 5
)

// Two-word phrases the bot opens with when it has to play first. All of
// them already satisfy the shape and script rules.
var botOpeners = []string{
	"bầu trời",
	"dòng sông",
	"cánh đồng",
	"mặt trời",
	"mùa xuân",
	"ngọn núi",
	"quê hương",
	"tình yêu",
	"đất nước",
	"ánh trăng",
}

// Second tokens the templated strategy combines with the chain anchor.
// Each one carries a Vietnamese diacritic so the resulting phrase always
// passes the script check regardless of the anchor.
var botVocabulary = []string{
	"đẹp", "đỏ", "mới", "nhỏ", "quá", "ơi", "đó", "kìa", "này", "ấy", "cũ", "lắm",
}

// Bot generates moves for the synthetic participant. It learns from the
// phrases humans submit during the session, falling back to templated
// candidates and finally to an explicit concession.
type Bot struct {
	// first token of observed phrases -> second tokens seen after it
	pairs map[string][]string
}

func newBot() *Bot {
	return &Bot{pairs: make(map[string][]string)}
}

// observe records the word pair of an accepted human phrase so the
// learned strategy can replay it later in the session.
func (b *Bot) observe(phrase string) {
	tokens := strings.Fields(phrase)
	if len(tokens) != 2 {
		return
	}
	b.pairs[tokens[0]] = append(b.pairs[tokens[0]], tokens[1])
}

// forget clears the learned pair table. Called on session reset.
func (b *Bot) forget() {
	b.pairs = make(map[string][]string)
}

type botStrategy func(lastWord string, used map[string]struct{}) (string, bool)

// learned draws a continuation from word pairs observed earlier in the
// session, skipping phrases that were already played.
func (b *Bot) learned(lastWord string, used map[string]struct{}) (string, bool) {
	seconds := b.pairs[lastWord]
	if len(seconds) == 0 {
		return "", false
	}
	for range botRetryLimit {
		candidate := lastWord + " " + seconds[rand.IntN(len(seconds))]
		if _, ok := used[candidate]; !ok {
			return candidate, true
		}
	}
	return "", false
}

// templated combines the anchor with a small fixed vocabulary.
func (b *Bot) templated(lastWord string, used map[string]struct{}) (string, bool) {
	for range botRetryLimit {
		candidate := lastWord + " " + botVocabulary[rand.IntN(len(botVocabulary))]
		if _, ok := used[candidate]; !ok {
			return candidate, true
		}
	}
	return "", false
}

// nextMove produces the bot's phrase for its turn. An empty lastWord
// means the bot must open the game. The second return value reports a
// concession: no legal candidate was found and the returned phrase
// deliberately breaks the chain, so the caller must eliminate the bot
// instead of playing the phrase.
func (b *Bot) nextMove(lastWord string, used map[string]struct{}) (string, bool) {
	if lastWord == "" {
		for range botRetryLimit {
			candidate := botOpeners[rand.IntN(len(botOpeners))]
			if _, ok := used[candidate]; !ok {
				return candidate, false
			}
		}
		return botOpeners[rand.IntN(len(botOpeners))], false
	}

	for _, strategy := range []botStrategy{b.learned, b.templated} {
		if phrase, ok := strategy(lastWord, used); ok {
			return phrase, false
		}
	}

	return lastWord + " …", true
}
