package probe

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const DefaultPhrase = "characters matched"

// CountParser extracts the number printed right before a fixed phrase,
// e.g. "7 characters matched".
type CountParser struct {
	phrase string
	re     *regexp.Regexp
}

func NewCountParser(phrase string) (*CountParser, error) {
	if strings.TrimSpace(phrase) == "" {
		return nil, errors.New("empty match phrase")
	}
	re, err := regexp.Compile(`(\d+) ` + regexp.QuoteMeta(phrase))
	if err != nil {
		return nil, err
	}
	return &CountParser{phrase: phrase, re: re}, nil
}

// Parse reports the count of the first occurrence of the phrase. A missing
// phrase or a number that does not fit an int is a miss.
func (p *CountParser) Parse(response string) (int, bool) {
	m := p.re.FindStringSubmatch(response)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *CountParser) Phrase() string {
	return p.phrase
}
