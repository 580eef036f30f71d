package pandoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

var pandocFormats = map[domain.Format]string{
	domain.FormatDocx:     "docx",
	domain.FormatODT:      "odt",
	domain.FormatMarkdown: "gfm",
}

// Converter shells out to pandoc for word processor formats.
type Converter struct {
	binary string
}

func New(binary string) *Converter {
	if strings.TrimSpace(binary) == "" {
		binary = "pandoc"
	}
	return &Converter{binary: binary}
}

func (c *Converter) Supports(from, to domain.Format) bool {
	_, okFrom := pandocFormats[from]
	_, okTo := pandocFormats[to]
	return okFrom && okTo && (from == domain.FormatMarkdown) != (to == domain.FormatMarkdown)
}

func (c *Converter) Convert(ctx context.Context, data []byte, from, to domain.Format) ([]byte, error) {
	if !c.Supports(from, to) {
		return nil, domain.WrapError(domain.ErrConversion, "pandoc convert", fmt.Errorf("%s -> %s not supported", from, to))
	}

	cmd := exec.CommandContext(ctx, c.binary, c.args(from, to)...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil, domain.WrapError(domain.ErrConversion, "pandoc convert", err)
	}
	return stdout.Bytes(), nil
}

func (c *Converter) args(from, to domain.Format) []string {
	args := []string{"--from", pandocFormats[from], "--to", pandocFormats[to]}
	if to == domain.FormatMarkdown {
		args = append(args, "--wrap=none")
	} else {
		// pandoc writes binary formats to stdout only with an explicit "-o -"
		args = append(args, "--output", "-")
	}
	return args
}
