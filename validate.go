package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Reason identifies why a submission eliminated its author, or why a
// command was rejected. The zero value means the submission was valid.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonWrongWordCount Reason = "wrong_word_count"
	ReasonWrongLanguage  Reason = "wrong_language"
	ReasonBannedWord     Reason = "banned_word"
	ReasonBrokenChain    Reason = "broken_chain"
	ReasonAlreadyUsed    Reason = "already_used"
	ReasonUnknownPhrase  Reason = "unknown_phrase"
	ReasonTimeout        Reason = "timeout"
	ReasonBotConceded    Reason = "bot_conceded"
)

// Every lowercase letter that only occurs in Vietnamese text. A phrase
// must contain at least one of these to count as Vietnamese.
const vietnameseLetters = "àáạảãâầấậẩẫăằắặẳẵèéẹẻẽêềếệểễìíịỉĩòóọỏõôồốộổỗơờớợởỡùúụủũưừứựửữỳýỵỷỹđ"

// The original banned word list, carried over verbatim.
var defaultBannedWords = []string{
	"đần", "bần", "ngu", "ngốc", "bò", "dốt", "nát", "chó", "địt", "mẹ", "mày", "má",
}

type phraseContext struct {
	currentPhrase string
	usedPhrases   map[string]struct{}
	isFirstPhrase bool
}

type Validator struct {
	banned map[string]struct{}
}

func newValidator(banned []string) *Validator {
	set := make(map[string]struct{}, len(banned))
	for _, word := range banned {
		set[normalizePhrase(word)] = struct{}{}
	}
	return &Validator{banned: set}
}

// loadBannedWords reads a newline-delimited word list, skipping blank
// lines and lines starting with '#'.
func loadBannedWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open banned word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read banned word list: %w", err)
	}
	return words, nil
}

// normalizePhrase maps raw input to its canonical form: NFC so that
// composed and decomposed diacritics compare equal, lowercased, with
// internal whitespace collapsed to single spaces.
func normalizePhrase(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(norm.NFC.String(raw)), " "))
}

// lastToken returns the chain anchor of a phrase, or "" for an empty one.
func lastToken(phrase string) string {
	tokens := strings.Fields(phrase)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func isVietnamese(phrase string) bool {
	for _, r := range phrase {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return strings.ContainsAny(phrase, vietnameseLetters)
}

// validate runs the submission checks in their fixed order and returns
// the normalized phrase. The first failing check decides the reason, so
// elimination reporting is deterministic. The pipeline never mutates
// its context.
func (v *Validator) validate(raw string, ctx phraseContext) (string, Reason) {
	phrase := normalizePhrase(raw)

	tokens := strings.Fields(phrase)
	if len(tokens) != 2 {
		return phrase, ReasonWrongWordCount
	}

	if !isVietnamese(phrase) {
		return phrase, ReasonWrongLanguage
	}

	for _, token := range tokens {
		if _, ok := v.banned[token]; ok {
			return phrase, ReasonBannedWord
		}
	}

	if !ctx.isFirstPhrase && tokens[0] != lastToken(ctx.currentPhrase) {
		return phrase, ReasonBrokenChain
	}

	if _, ok := ctx.usedPhrases[phrase]; ok {
		return phrase, ReasonAlreadyUsed
	}

	return phrase, ReasonNone
}
