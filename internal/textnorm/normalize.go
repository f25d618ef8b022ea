// Package textnorm normalizes raw event-name text ahead of embedding so that
// surface variants of the same event name ("3rd Belt & Road Forum!", "belt
// and road forum") collapse to the same form.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	ordinalRe    = regexp.MustCompile(`^\d+(st|nd|rd|th)$`)

	// stripMarks removes diacritics after NFD decomposition.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// wordOrdinals are spelled-out ordinal tokens dropped during normalization.
var wordOrdinals = map[string]bool{
	"first": true, "second": true, "third": true, "fourth": true,
	"fifth": true, "sixth": true, "seventh": true, "eighth": true,
	"ninth": true, "tenth": true, "eleventh": true, "twelfth": true,
	"annual": true,
}

// Normalizer normalizes event names with a configurable generic-noun stoplist.
type Normalizer struct {
	stoplist map[string]bool
}

// New creates a Normalizer. The stoplist holds generic nouns (e.g. "forum",
// "summit") that carry no identity signal on their own.
func New(stoplist []string) *Normalizer {
	m := make(map[string]bool, len(stoplist))
	for _, s := range stoplist {
		m[strings.ToLower(s)] = true
	}
	return &Normalizer{stoplist: m}
}

// Normalize lowercases, strips punctuation and diacritics, removes ordinal
// tokens and stoplisted nouns, and collapses whitespace. If stripping would
// leave nothing, the lowercased punctuation-free form is returned instead so
// that no mention vanishes entirely.
func (n *Normalizer) Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	words := strings.Fields(s)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if ordinalRe.MatchString(w) || wordOrdinals[w] || n.stoplist[w] {
			continue
		}
		kept = append(kept, w)
	}

	if len(kept) == 0 {
		return s
	}
	return strings.Join(kept, " ")
}
