package probe

import (
	"errors"
	"fmt"
	"strings"
)

var defaultAlphabet = []string{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"!", "@", "#", "$", "%", "^", "&", "*", "(", ")", "_", "-", "=", "+",
	"[", "]", "{", "}", "|", ";", ":", "'", "<", ">", ",", ".", "?", "/",
	"~", "`", "\\", "\"", " ",
}

var (
	ErrEmptyAlphabet = errors.New("alphabet is empty")
	ErrCandidate     = errors.New("invalid candidate")
)

// Alphabet is an immutable, ordered list of candidates.
type Alphabet struct {
	items []string
}

func DefaultAlphabet() Alphabet {
	return Alphabet{items: append([]string(nil), defaultAlphabet...)}
}

// NewAlphabet copies items in order. Duplicates are kept. A candidate may
// not contain CR or LF, since every payload has to stay on one line.
func NewAlphabet(items []string) (Alphabet, error) {
	if len(items) == 0 {
		return Alphabet{}, ErrEmptyAlphabet
	}
	for i, item := range items {
		if strings.ContainsAny(item, "\r\n") {
			return Alphabet{}, fmt.Errorf("%w: candidate %d (%q) contains a line break", ErrCandidate, i+1, item)
		}
	}
	return Alphabet{items: append([]string(nil), items...)}, nil
}

// ParseAlphabet turns every rune of raw into one candidate.
// An empty string yields the default alphabet.
func ParseAlphabet(raw string) (Alphabet, error) {
	if raw == "" {
		return DefaultAlphabet(), nil
	}
	items := make([]string, 0, len(raw))
	for _, r := range raw {
		items = append(items, string(r))
	}
	return NewAlphabet(items)
}

func (a Alphabet) Len() int {
	return len(a.items)
}

func (a Alphabet) At(i int) string {
	return a.items[i]
}

// Items returns a copy of the candidates.
func (a Alphabet) Items() []string {
	return append([]string(nil), a.items...)
}
