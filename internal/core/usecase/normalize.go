package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

// Normalize converts raw uploads into markdown blobs in the batch folder. A blob
// with the same name is replaced, so re-running on a file never duplicates it.
func (p *Pipeline) Normalize(ctx context.Context, s *domain.Session, req ports.NormalizeRequest) (ports.NormalizeReport, error) {
	if err := requireSelection("normalize", req.Files); err != nil {
		return ports.NormalizeReport{}, err
	}

	s.Lock()
	defer s.Unlock()

	batch := batchOf(s, req.Batch)
	batchID, err := p.ensureBatchFolder(ctx, batch)
	if err != nil {
		return ports.NormalizeReport{}, err
	}

	run := p.startStage(domain.StageNormalize, batch)
	outputs := make(map[string]string, len(req.Files))
	for _, file := range req.Files {
		outcome := run.begin(ctx, file.Name)
		blobID, err := p.normalizeFile(ctx, batchID, file, req.Header)
		run.finish(ctx, outcome, err)
		if err == nil {
			outputs[file.Name] = blobID
		}
	}

	return ports.NormalizeReport{StageReport: run.done(ctx), Outputs: outputs}, nil
}

func (p *Pipeline) normalizeFile(ctx context.Context, batchID string, file ports.RawFile, header *ports.SubmitterHeader) (string, error) {
	name := file.Name
	if name == "" {
		resolved, err := p.store.FileName(ctx, file.ID)
		if err != nil {
			return "", fmt.Errorf("resolve file name: %w", err)
		}
		name = resolved
	}
	if domain.IsDerivedArtifact(name) {
		return "", domain.WrapError(domain.ErrInvalidInput, "normalize", fmt.Errorf("%q is a derived artifact", name))
	}
	format, err := domain.FormatFromFileName(name)
	if err != nil {
		return "", err
	}

	data, err := p.store.ReadBytes(ctx, file.ID)
	if err != nil {
		return "", fmt.Errorf("read raw file: %w", err)
	}
	converted, err := p.converter.Convert(ctx, data, format, domain.FormatMarkdown)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	text := strings.TrimSpace(string(converted))
	if text == "" {
		return "", domain.WrapError(domain.ErrConversion, "convert to markdown", errors.New("empty conversion result"))
	}
	if header != nil {
		text = headerBlock(*header) + "\n\n" + text
	}

	blobID, err := p.store.WriteOrReplace(ctx, batchID, domain.NormalizedName(name), []byte(text), domain.FormatMarkdown.MimeType())
	if err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}
	return blobID, nil
}

func headerBlock(h ports.SubmitterHeader) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\nDate: %s", h.Name, h.Email, h.Date)
}
