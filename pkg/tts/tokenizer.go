package tts

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true,
	"vs": true, "e.g": true, "i.e": true, "etc": true,
}

// SentenceTokenizer splits response text into sentences that are synthesized
// one at a time, so the first audio plays before the whole reply is spoken.
type SentenceTokenizer struct {
	// MinSentenceLen is the minimum sentence length in characters. Shorter
	// fragments are joined with the following sentence.
	MinSentenceLen int
}

// NewSentenceTokenizer returns a tokenizer with the given minimum length.
func NewSentenceTokenizer(minLen int) *SentenceTokenizer {
	return &SentenceTokenizer{MinSentenceLen: minLen}
}

// Split breaks text into trimmed sentences. Line breaks always end a sentence.
func (t *SentenceTokenizer) Split(text string) []string {
	var (
		out     []string
		pending string
		cur     strings.Builder
	)

	emit := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		if pending != "" {
			s = pending + " " + s
			pending = ""
		}
		if len([]rune(s)) < t.MinSentenceLen {
			pending = s
			return
		}
		out = append(out, s)
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			emit()
			continue
		}
		cur.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Keep closing quotes and brackets with the sentence.
		for i+1 < len(runes) && strings.ContainsRune(`"')]”’`, runes[i+1]) {
			i++
			cur.WriteRune(runes[i])
		}

		atEnd := i+1 >= len(runes)
		if !atEnd && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && endsWithAbbreviation(cur.String()) {
			continue
		}
		emit()
	}
	emit()

	if pending != "" {
		if n := len(out); n > 0 {
			out[n-1] += " " + pending
		} else {
			out = append(out, pending)
		}
	}
	return out
}

func endsWithAbbreviation(s string) bool {
	s = strings.TrimRight(s, `."')]”’`)
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 {
		s = s[i+1:]
	}
	return abbreviations[strings.ToLower(s)]
}
