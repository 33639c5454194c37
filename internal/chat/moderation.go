package chat

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Moderator masks censored words in message bodies. A nil Moderator leaves
// text untouched.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// NewModerator builds the matcher for words. It returns nil when there is
// nothing to censor.
func NewModerator(words []string, censoredChar rune) (*Moderator, error) {
	words = lo.Uniq(lo.FilterMap(words, func(w string, _ int) (string, bool) {
		w = strings.ToLower(strings.TrimSpace(w))
		return w, w != ""
	}))
	if len(words) == 0 {
		return nil, nil
	}
	sort.Strings(words)

	patterns := lo.Map(words, func(w string, _ int) []rune { return []rune(w) })
	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("build censor dictionary: %w", err)
	}
	return &Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// Censor replaces every case-insensitive match with the censored character.
func (m *Moderator) Censor(text string) string {
	if m == nil || text == "" {
		return text
	}

	original := []rune(text)
	lowered := lo.Map(original, func(r rune, _ int) rune { return unicode.ToLower(r) })
	terms := m.matcher.MultiPatternSearch(lowered, false)
	if len(terms) == 0 {
		return text
	}

	for _, term := range terms {
		end := term.Pos + len(term.Word)
		if term.Pos < 0 || end > len(original) {
			continue
		}
		for i := term.Pos; i < end; i++ {
			original[i] = m.censoredChar
		}
	}
	return string(original)
}
