package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Converter passes UTF-8 text and markdown through unchanged apart from
// normalizing line endings.
type Converter struct{}

func New() *Converter {
	return &Converter{}
}

func (c *Converter) Supports(from, to domain.Format) bool {
	return isText(from) && isText(to)
}

func (c *Converter) Convert(_ context.Context, data []byte, from, to domain.Format) ([]byte, error) {
	if !c.Supports(from, to) {
		return nil, domain.WrapError(domain.ErrConversion, "plaintext convert", fmt.Errorf("%s -> %s not supported", from, to))
	}
	if !utf8.Valid(data) {
		return nil, domain.WrapError(domain.ErrConversion, "plaintext convert", fmt.Errorf("input is not utf-8 text"))
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return []byte(strings.TrimSpace(text)), nil
}

func isText(f domain.Format) bool {
	return f == domain.FormatMarkdown || f == domain.FormatText
}
