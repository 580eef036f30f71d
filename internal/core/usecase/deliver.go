package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

// Deliver persists the combined report of each graded exam in the batch it was
// split from, updates that batch's gradebook and emails the report to the
// instructor. A failed email never removes a persisted report.
func (p *Pipeline) Deliver(ctx context.Context, s *domain.Session, req ports.DeliverRequest) (ports.DeliverReport, error) {
	if err := requireSelection("deliver", req.Exams); err != nil {
		return ports.DeliverReport{}, err
	}
	if err := validateBatchFilter(req.Batch); err != nil {
		return ports.DeliverReport{}, err
	}

	s.Lock()
	defer s.Unlock()

	run := p.startStage(domain.StageDeliver, req.Batch)
	warnings := 0
	for _, ref := range req.Exams {
		key, err := s.ResolveGraded(req.Batch, ref)
		if err != nil {
			outcome := run.begin(ctx, ref)
			run.finish(ctx, outcome, fmt.Errorf("deliver: %w", err))
			continue
		}
		g, _ := s.Graded(key)
		outcome := run.beginIn(ctx, g.Exam.Batch, g.Exam.OriginalFileName)
		err = p.deliverExam(ctx, g.Exam.BatchFolderID, g.Exam.Batch, g, &warnings)
		run.finish(ctx, outcome, err)
	}
	return ports.DeliverReport{StageReport: run.done(ctx), Warnings: warnings}, nil
}

func (p *Pipeline) deliverExam(ctx context.Context, batchID, batch string, g domain.GradedExam, warnings *int) error {
	origName := g.Exam.OriginalFileName
	report := composeReport(g)
	if _, err := p.store.WriteOrReplace(ctx, batchID, domain.ReportName(origName), []byte(report), domain.FormatMarkdown.MimeType()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if err := p.upsertGradebook(ctx, batchID, batch, g); err != nil {
		*warnings++
		p.logger.Warn("gradebook_update_failed", "batch", batch, "exam", g.Key, "error", err)
	}

	docx, err := p.converter.Convert(ctx, []byte(report), domain.FormatMarkdown, domain.FormatDocx)
	if err != nil {
		return fmt.Errorf("convert report: %w", err)
	}
	docName := domain.ReportDocumentName(origName)
	docID, err := p.store.WriteOrReplace(ctx, batchID, docName, docx, domain.FormatDocx.MimeType())
	if err != nil {
		return fmt.Errorf("write report document: %w", err)
	}
	link, err := p.store.ShareableLink(ctx, docID)
	if err != nil {
		return fmt.Errorf("shareable link: %w", err)
	}

	msg := domain.EmailMessage{
		To:      p.cfg.InstructorEmail,
		Subject: emailSubject(g.Exam),
		Body:    emailBody(g.Exam, link),
		Attachment: &domain.Attachment{
			Name:        docName,
			ContentType: domain.FormatDocx.MimeType(),
			Data:        docx,
		},
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return domain.WrapError(domain.ErrDelivery, "send report email", err)
	}
	return nil
}

func (p *Pipeline) upsertGradebook(ctx context.Context, batchID, batch string, g domain.GradedExam) error {
	if p.gradebook == nil {
		return nil
	}
	name := domain.GradebookName(batch)
	var existing []byte
	fileID, ok, err := p.store.FileID(ctx, batchID, name)
	if err != nil {
		return fmt.Errorf("lookup gradebook: %w", err)
	}
	if ok {
		if existing, err = p.store.ReadBytes(ctx, fileID); err != nil {
			return fmt.Errorf("read gradebook: %w", err)
		}
	}
	updated, err := p.gradebook.Upsert(existing, gradeRow(g))
	if err != nil {
		return fmt.Errorf("upsert gradebook row: %w", err)
	}
	if _, err := p.store.WriteOrReplace(ctx, batchID, name, updated, domain.MimeXLSX); err != nil {
		return fmt.Errorf("write gradebook: %w", err)
	}
	return nil
}
