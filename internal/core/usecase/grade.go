package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

const (
	gradeMessage = "Grade this text per instructions: %s"

	scoreInstruction = "Read the assessment below written by a grader of a French prépa mock exam. " +
		"Return the final score out of 20 it awards, as an integer, and the number of errors " +
		"it reports per error category. Use 0 when no score is given."
)

// scoreCard is the structure extracted from assessment feedback.
type scoreCard struct {
	Score  int              `json:"score" description:"Final score out of 20"`
	Errors []errorTallyItem `json:"errors" description:"Number of errors per category"`
}

type errorTallyItem struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

func (c scoreCard) distribution() map[string]int {
	out := make(map[string]int, len(c.Errors))
	for _, item := range c.Errors {
		category := strings.TrimSpace(item.Category)
		if category == "" || item.Count <= 0 {
			continue
		}
		out[category] += item.Count
	}
	return out
}

// Grade grades every section of the selected exams in fixed order. Each section
// is one item of the report, so Failed counts failed sections. Outputs go to the
// batch folder each exam was split from.
func (p *Pipeline) Grade(ctx context.Context, s *domain.Session, req ports.GradeRequest) (ports.GradeReport, error) {
	if err := requireSelection("grade", req.Exams); err != nil {
		return ports.GradeReport{}, err
	}
	if err := validateBatchFilter(req.Batch); err != nil {
		return ports.GradeReport{}, err
	}

	s.Lock()
	defer s.Unlock()

	settings := s.Settings()
	if err := settings.Validate(); err != nil {
		return ports.GradeReport{}, err
	}

	run := p.startStage(domain.StageGrade, req.Batch)
	graded := make([]domain.GradedExam, 0, len(req.Exams))
	for _, ref := range req.Exams {
		key, exam, err := splitExam(s, req.Batch, ref)
		if err != nil {
			outcome := run.begin(ctx, ref)
			run.finish(ctx, outcome, fmt.Errorf("grade: %w", err))
			continue
		}
		g := p.gradeExam(ctx, run, key, exam, settings)
		s.PutGraded(key, g)
		graded = append(graded, g)
	}

	return ports.GradeReport{StageReport: run.done(ctx), Exams: graded}, nil
}

// splitExam resolves a selection entry to a fully split exam of the session.
func splitExam(s *domain.Session, batch, ref string) (string, domain.MockExam, error) {
	key, err := s.ResolveExam(batch, ref)
	if err != nil {
		return "", domain.MockExam{}, err
	}
	exam, _ := s.Exam(key)
	if !exam.Complete() || exam.BatchFolderID == "" {
		return "", domain.MockExam{}, domain.WrapError(domain.ErrNotFound, "resolve exam", fmt.Errorf("%q is not fully split", key))
	}
	return key, exam, nil
}

func (p *Pipeline) gradeExam(
	ctx context.Context,
	run *stageRun,
	key string,
	exam domain.MockExam,
	settings domain.Settings,
) domain.GradedExam {
	assessments := make(map[domain.SectionKind]domain.Assessment, 3)
	for _, section := range exam.Sections() {
		outcome := run.beginIn(ctx, exam.Batch, exam.OriginalFileName+" - "+section.Kind.DisplayName())
		assessment, err := p.gradeSection(ctx, section, settings)
		if err == nil {
			blobName := domain.SectionAssessmentName(exam.OriginalFileName, section.Kind)
			if _, werr := p.store.WriteOrReplace(ctx, exam.BatchFolderID, blobName, []byte(assessment.Feedback), domain.FormatMarkdown.MimeType()); werr != nil {
				err = fmt.Errorf("write section assessment: %w", werr)
			}
		}
		run.finish(ctx, outcome, err)
		assessments[section.Kind] = assessment
	}

	scores := make(map[domain.SectionKind]int, len(assessments))
	for kind, a := range assessments {
		scores[kind] = a.Score
	}
	return domain.GradedExam{
		Key:         key,
		Exam:        exam,
		Assessments: assessments,
		FinalScore:  domain.FinalScore(settings.Weights(), scores),
		GradedAt:    p.now(),
	}
}

// gradeSection always returns a usable assessment. A grading failure yields the
// sentinel feedback; a scoring failure keeps the feedback with a zero score.
func (p *Pipeline) gradeSection(ctx context.Context, section domain.Section, settings domain.Settings) (domain.Assessment, error) {
	rubric, err := settings.RubricFor(section.Kind)
	if err == nil && strings.TrimSpace(rubric) == "" {
		err = domain.WrapError(domain.ErrInvalidInput, "grade section", fmt.Errorf("no rubric for %s", section.Kind))
	}
	if err != nil {
		return domain.FailedAssessment(section.Kind, err), err
	}

	feedback, err := p.runGrading(ctx, rubric, section.Markdown)
	if err != nil {
		return domain.FailedAssessment(section.Kind, err), err
	}

	var card scoreCard
	if err := p.scorer.Extract(ctx, scoreInstruction, feedback, &card); err != nil {
		err = fmt.Errorf("extract score: %w", err)
		a := domain.NewAssessment(section.Kind, feedback, 0, nil)
		a.Error = err.Error()
		return a, err
	}
	return domain.NewAssessment(section.Kind, feedback, card.Score, card.distribution()), nil
}

// runGrading drives one backend session: create, submit, poll until a terminal
// status, read the reply. The session is closed on every path.
func (p *Pipeline) runGrading(ctx context.Context, rubric, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.GradeTimeout)
	defer cancel()

	sessionID, err := p.grader.CreateSession(ctx, rubric)
	if err != nil {
		return "", domain.WrapError(domain.ErrGrading, "create grading session", err)
	}
	defer p.closeGradingSession(ctx, sessionID)

	runID, err := p.grader.Submit(ctx, sessionID, rubric, fmt.Sprintf(gradeMessage, text))
	if err != nil {
		return "", domain.WrapError(domain.ErrGrading, "submit section", err)
	}
	if err := p.awaitRun(ctx, sessionID, runID); err != nil {
		return "", err
	}

	reply, err := p.grader.Reply(ctx, sessionID)
	if err != nil {
		return "", domain.WrapError(domain.ErrGrading, "read grading reply", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", domain.WrapError(domain.ErrGrading, "read grading reply", errors.New("empty reply"))
	}
	return reply, nil
}

func (p *Pipeline) awaitRun(ctx context.Context, sessionID, runID string) error {
	for polls := 1; ; polls++ {
		status, err := p.grader.RunStatus(ctx, sessionID, runID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.WrapError(domain.ErrTimeout, "poll grading run", err)
			}
			return domain.WrapError(domain.ErrGrading, "poll grading run", err)
		}
		if status == domain.RunCompleted {
			return nil
		}
		if status.Terminal() {
			return domain.WrapError(domain.ErrGrading, "poll grading run", fmt.Errorf("run %s ended with status %s", runID, status))
		}
		if p.cfg.MaxPolls > 0 && polls >= p.cfg.MaxPolls {
			return domain.WrapError(domain.ErrTimeout, "poll grading run", fmt.Errorf("run %s still %s after %d polls", runID, status, polls))
		}

		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.WrapError(domain.ErrTimeout, "poll grading run", ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *Pipeline) closeGradingSession(ctx context.Context, sessionID string) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeSessionTimeout)
	defer cancel()
	if err := p.grader.CloseSession(closeCtx, sessionID); err != nil {
		p.logger.Warn("grading_session_close_failed", "session_id", sessionID, "error", err)
	}
}
