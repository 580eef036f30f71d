package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

const (
	defaultGradeTimeout = 120 * time.Second
	defaultPollInterval = time.Second
	closeSessionTimeout = 10 * time.Second
)

// Layout names the top-level folders of the blob store.
type Layout struct {
	AttachmentsFolder string
	OutputFolder      string
	ConfigFolder      string
}

type PipelineConfig struct {
	Layout          Layout
	InstructorEmail string
	GradeTimeout    time.Duration
	PollInterval    time.Duration
	// MaxPolls bounds status polls per grading run. Zero leaves only GradeTimeout.
	MaxPolls int
}

func (c PipelineConfig) normalize() PipelineConfig {
	if c.GradeTimeout <= 0 {
		c.GradeTimeout = defaultGradeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPolls < 0 {
		c.MaxPolls = 0
	}
	return c
}

type PipelineDeps struct {
	Store     ports.BlobStore
	Converter ports.FormatConverter
	Extractor ports.StructuredExtractor
	// ScoreExtractor reads score cards out of feedback. Defaults to Extractor.
	ScoreExtractor ports.StructuredExtractor
	Grader         ports.GradingBackend
	Mailer         ports.Mailer
	Journal        ports.RunJournal
	Gradebook      ports.Gradebook
	Observer       ports.PipelineObserver
	Logger         *slog.Logger
}

// Pipeline runs the normalize, split, grade and deliver stages. Items within a
// stage are processed sequentially and fail independently.
type Pipeline struct {
	store     ports.BlobStore
	converter ports.FormatConverter
	extractor ports.StructuredExtractor
	scorer    ports.StructuredExtractor
	grader    ports.GradingBackend
	mailer    ports.Mailer
	journal   ports.RunJournal
	gradebook ports.Gradebook
	observer  ports.PipelineObserver
	logger    *slog.Logger
	cfg       PipelineConfig
	now       func() time.Time
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	p := &Pipeline{
		store:     deps.Store,
		converter: deps.Converter,
		extractor: deps.Extractor,
		scorer:    deps.ScoreExtractor,
		grader:    deps.Grader,
		mailer:    deps.Mailer,
		journal:   deps.Journal,
		gradebook: deps.Gradebook,
		observer:  deps.Observer,
		logger:    deps.Logger,
		cfg:       cfg.normalize(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if p.scorer == nil {
		p.scorer = p.extractor
	}
	if p.journal == nil {
		p.journal = nopJournal{}
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Attachments lists raw uploads waiting in the attachments folder.
func (p *Pipeline) Attachments(ctx context.Context) (map[string]string, error) {
	folderID, err := p.store.EnsureFolder(ctx, ports.RootFolderID, p.cfg.Layout.AttachmentsFolder)
	if err != nil {
		return nil, fmt.Errorf("ensure attachments folder: %w", err)
	}
	files, err := p.store.ListFiles(ctx, folderID, "docx", "odt", "pdf")
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return files, nil
}

// History returns recorded item outcomes of a batch, newest first.
func (p *Pipeline) History(ctx context.Context, batch string, limit int) ([]domain.ItemOutcome, error) {
	if err := domain.ValidateFolderName(batch); err != nil {
		return nil, err
	}
	return p.journal.ListByBatch(ctx, batch, limit)
}

func (p *Pipeline) outputRoot(ctx context.Context) (string, error) {
	id, err := p.store.EnsureFolder(ctx, ports.RootFolderID, p.cfg.Layout.OutputFolder)
	if err != nil {
		return "", fmt.Errorf("ensure output folder: %w", err)
	}
	return id, nil
}

// ensureBatchFolder creates the batch folder on first use.
func (p *Pipeline) ensureBatchFolder(ctx context.Context, batch string) (string, error) {
	if err := domain.ValidateFolderName(batch); err != nil {
		return "", err
	}
	root, err := p.outputRoot(ctx)
	if err != nil {
		return "", err
	}
	id, err := p.store.EnsureFolder(ctx, root, batch)
	if err != nil {
		return "", fmt.Errorf("ensure batch folder: %w", err)
	}
	return id, nil
}

// batchFolder looks up an existing batch folder.
func (p *Pipeline) batchFolder(ctx context.Context, batch string) (string, error) {
	if err := domain.ValidateFolderName(batch); err != nil {
		return "", err
	}
	root, err := p.outputRoot(ctx)
	if err != nil {
		return "", err
	}
	id, ok, err := p.store.FolderID(ctx, root, batch)
	if err != nil {
		return "", fmt.Errorf("lookup batch folder: %w", err)
	}
	if !ok {
		return "", domain.WrapError(domain.ErrNotFound, "lookup batch folder", fmt.Errorf("batch %q", batch))
	}
	return id, nil
}

func batchOf(s *domain.Session, requested string) string {
	if requested != "" {
		return requested
	}
	return s.Settings().CurrentBatch
}

// validateBatchFilter accepts an empty batch, meaning every batch of the session.
func validateBatchFilter(batch string) error {
	if batch == "" {
		return nil
	}
	return domain.ValidateFolderName(batch)
}

func requireSelection[T any](op string, items []T) error {
	if len(items) == 0 {
		return domain.NewValidationError(op, domain.FieldError{Field: "selection", Message: "no items selected"})
	}
	return nil
}

// stageRun tracks the outcomes of one stage invocation.
type stageRun struct {
	p      *Pipeline
	report domain.StageReport
}

func (p *Pipeline) startStage(stage domain.Stage, batch string) *stageRun {
	return &stageRun{
		p: p,
		report: domain.StageReport{
			RunID: uuid.NewString(),
			Stage: stage,
			Batch: batch,
			Items: []domain.ItemOutcome{},
		},
	}
}

func (r *stageRun) begin(ctx context.Context, item string) domain.ItemOutcome {
	return r.beginIn(ctx, r.report.Batch, item)
}

// beginIn opens an item of another batch than the stage's own.
func (r *stageRun) beginIn(ctx context.Context, batch, item string) domain.ItemOutcome {
	outcome := domain.ItemOutcome{
		RunID:     r.report.RunID,
		Batch:     batch,
		Stage:     r.report.Stage,
		Item:      item,
		Status:    domain.ItemInProgress,
		StartedAt: r.p.now(),
	}
	r.record(ctx, outcome)
	return outcome
}

// finish closes an item. A nil err marks it succeeded.
func (r *stageRun) finish(ctx context.Context, outcome domain.ItemOutcome, err error) {
	outcome.FinishedAt = r.p.now()
	outcome.Status = domain.ItemSucceeded
	level := slog.LevelInfo
	if err != nil {
		outcome.Status = domain.ItemFailed
		outcome.Error = err.Error()
		level = slog.LevelWarn
	}
	duration := outcome.FinishedAt.Sub(outcome.StartedAt)

	r.record(ctx, outcome)
	r.p.observer.ObserveItem(outcome.Stage, outcome.Status, duration)
	r.p.logger.Log(ctx, level, "pipeline_item",
		"run_id", outcome.RunID,
		"stage", string(outcome.Stage),
		"batch", outcome.Batch,
		"item", outcome.Item,
		"status", string(outcome.Status),
		"duration_ms", duration.Milliseconds(),
		"error", outcome.Error,
	)
	r.report.Add(outcome)
}

func (r *stageRun) record(ctx context.Context, outcome domain.ItemOutcome) {
	if err := r.p.journal.Record(ctx, outcome); err != nil {
		r.p.logger.Warn("journal_record_failed", "run_id", outcome.RunID, "item", outcome.Item, "error", err)
	}
}

func (r *stageRun) done(ctx context.Context) domain.StageReport {
	r.p.logger.InfoContext(ctx, "pipeline_stage_summary",
		"run_id", r.report.RunID,
		"stage", string(r.report.Stage),
		"batch", r.report.Batch,
		"succeeded", r.report.Succeeded,
		"failed", r.report.Failed,
	)
	return r.report
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, domain.ItemOutcome) error { return nil }
func (nopJournal) ListByBatch(context.Context, string, int) ([]domain.ItemOutcome, error) {
	return []domain.ItemOutcome{}, nil
}

type nopObserver struct{}

func (nopObserver) ObserveItem(domain.Stage, domain.ItemStatus, time.Duration) {}
