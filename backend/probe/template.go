package probe

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultPlaceholder = "<slot>"
	DefaultTemplate    = "wildcat{" + DefaultPlaceholder + "}"
)

var ErrTemplate = errors.New("invalid payload template")

// Template splits a payload template around its single placeholder so the
// candidate is spliced in byte for byte.
type Template struct {
	raw    string
	prefix string
	suffix string
}

func ParseTemplate(raw, placeholder string) (Template, error) {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if strings.ContainsAny(raw, "\r\n") {
		return Template{}, fmt.Errorf("%w: template must fit on one line", ErrTemplate)
	}
	switch n := strings.Count(raw, placeholder); n {
	case 1:
	case 0:
		return Template{}, fmt.Errorf("%w: placeholder %q not found in %q", ErrTemplate, placeholder, raw)
	default:
		return Template{}, fmt.Errorf("%w: placeholder %q appears %d times in %q", ErrTemplate, placeholder, n, raw)
	}
	idx := strings.Index(raw, placeholder)
	return Template{
		raw:    raw,
		prefix: raw[:idx],
		suffix: raw[idx+len(placeholder):],
	}, nil
}

func MustParseTemplate(raw, placeholder string) Template {
	t, err := ParseTemplate(raw, placeholder)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) Render(candidate string) string {
	return t.prefix + candidate + t.suffix
}

func (t Template) String() string {
	return t.raw
}
