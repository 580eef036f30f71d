package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

const splitInstruction = "Analyze this student's mock exam in English for a French prépa and split it " +
	"into three parts for the Synthèse, Essai, and Traduction.\n" +
	" The original file ID is %s.\n" +
	" The original file name is %s.\n" +
	" The date of the file is %s."

// mockExamShape is the structure requested from the extractor.
type mockExamShape struct {
	Name        string `json:"name" description:"Full name of the student"`
	Date        string `json:"date" description:"Date of the exam, YYYY-MM-DD"`
	Description string `json:"description" description:"One sentence describing the submission"`
	Synthese    string `json:"synthese" description:"Markdown text of the Synthèse part, empty if absent"`
	Essai       string `json:"essai" description:"Markdown text of the Essai part, empty if absent"`
	Traduction  string `json:"traduction" description:"Markdown text of the Traduction part, empty if absent"`
}

// SplitCandidates lists normalized blobs in the batch that are not derived artifacts.
func (p *Pipeline) SplitCandidates(ctx context.Context, batch string) ([]string, error) {
	batchID, err := p.batchFolder(ctx, batch)
	if err != nil {
		return nil, err
	}
	files, err := p.store.ListFiles(ctx, batchID, "md")
	if err != nil {
		return nil, fmt.Errorf("list batch files: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, name := range sortedNames(files) {
		if !domain.IsDerivedArtifact(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Split decomposes each selected markdown blob into a mock exam and stores its
// three section blobs. Only fully split exams enter the session.
func (p *Pipeline) Split(ctx context.Context, s *domain.Session, req ports.SplitRequest) (domain.StageReport, error) {
	if err := requireSelection("split", req.Files); err != nil {
		return domain.StageReport{}, err
	}

	s.Lock()
	defer s.Unlock()

	batch := batchOf(s, req.Batch)
	batchID, err := p.batchFolder(ctx, batch)
	if err != nil {
		return domain.StageReport{}, err
	}
	files, err := p.store.ListFiles(ctx, batchID, "md")
	if err != nil {
		return domain.StageReport{}, fmt.Errorf("list batch files: %w", err)
	}

	run := p.startStage(domain.StageSplit, batch)
	for _, name := range req.Files {
		outcome := run.begin(ctx, name)
		exam, err := p.splitFile(ctx, batchID, name, files)
		run.finish(ctx, outcome, err)
		if err == nil {
			exam.Batch = batch
			exam.BatchFolderID = batchID
			s.PutExam(domain.ExamKey(batch, name), exam)
		}
	}
	return run.done(ctx), nil
}

func (p *Pipeline) splitFile(ctx context.Context, batchID, name string, files map[string]string) (domain.MockExam, error) {
	if domain.IsDerivedArtifact(name) {
		return domain.MockExam{}, domain.WrapError(domain.ErrInvalidInput, "split", fmt.Errorf("%q is a derived artifact", name))
	}
	fileID, ok := files[name]
	if !ok {
		return domain.MockExam{}, domain.WrapError(domain.ErrNotFound, "split", fmt.Errorf("file %q", name))
	}

	text, err := p.store.ReadText(ctx, fileID)
	if err != nil {
		return domain.MockExam{}, fmt.Errorf("read markdown: %w", err)
	}
	created, err := p.store.CreatedAt(ctx, fileID)
	if err != nil {
		return domain.MockExam{}, fmt.Errorf("read creation date: %w", err)
	}
	fileDate := created.Format("2006-01-02")

	var shape mockExamShape
	instruction := fmt.Sprintf(splitInstruction, fileID, name, fileDate)
	if err := p.extractor.Extract(ctx, instruction, text, &shape); err != nil {
		return domain.MockExam{}, fmt.Errorf("extract sections: %w", err)
	}

	exam := shape.toExam(fileID, name, fileDate, text)
	if !exam.Complete() {
		return domain.MockExam{}, domain.WrapError(domain.ErrGrading, "split", errors.New("incomplete decomposition"))
	}
	if err := p.writeSections(ctx, batchID, name, exam); err != nil {
		return domain.MockExam{}, err
	}
	return exam, nil
}

// writeSections stores the three section blobs. On a failed write the blobs
// already written by this call are deleted again.
func (p *Pipeline) writeSections(ctx context.Context, batchID, name string, exam domain.MockExam) error {
	written := make([]string, 0, 3)
	for _, section := range exam.Sections() {
		blobName := domain.SectionBlobName(name, section.Kind)
		id, err := p.store.WriteOrReplace(ctx, batchID, blobName, []byte(section.Markdown), domain.FormatMarkdown.MimeType())
		if err != nil {
			for _, done := range written {
				if derr := p.store.Delete(ctx, done); derr != nil {
					p.logger.Warn("section_rollback_failed", "file", name, "blob_id", done, "error", derr)
				}
			}
			return fmt.Errorf("write section %s: %w", section.Kind, err)
		}
		written = append(written, id)
	}
	return nil
}

// toExam fixes identity fields from the blob rather than trusting the model.
func (m mockExamShape) toExam(fileID, fileName, fileDate, markdown string) domain.MockExam {
	name := m.Name
	if name == "" {
		name = domain.BaseName(fileName)
	}
	date := m.Date
	if date == "" {
		date = fileDate
	}
	return domain.MockExam{
		Submission: domain.Submission{
			Name:             name,
			Date:             date,
			Description:      m.Description,
			OriginalFileID:   fileID,
			OriginalFileName: fileName,
			Markdown:         markdown,
			WordCount:        domain.CountWords(markdown),
		},
		Synthese:   domain.NewSection(domain.SectionSynthese, m.Synthese),
		Essai:      domain.NewSection(domain.SectionEssai, m.Essai),
		Traduction: domain.NewSection(domain.SectionTraduction, m.Traduction),
	}
}
