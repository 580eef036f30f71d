package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// Converter extracts the text layer of a PDF as markdown paragraphs.
type Converter struct{}

func New() *Converter {
	return &Converter{}
}

func (c *Converter) Supports(from, to domain.Format) bool {
	return from == domain.FormatPDF && to == domain.FormatMarkdown
}

func (c *Converter) Convert(_ context.Context, data []byte, from, to domain.Format) (out []byte, err error) {
	if !c.Supports(from, to) {
		return nil, domain.WrapError(domain.ErrConversion, "pdf convert", fmt.Errorf("%s -> %s not supported", from, to))
	}
	// the pdf reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, domain.WrapError(domain.ErrConversion, "pdf convert", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "extract pdf text", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "read pdf text", err)
	}
	return []byte(paragraphs(buf.String())), nil
}

// paragraphs trims trailing spaces and collapses runs of blank lines.
func paragraphs(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
