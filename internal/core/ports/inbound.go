package ports

import (
	"context"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// RawFile selects one uploaded file by blob id.
type RawFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubmitterHeader is prepended to normalized text for student uploads.
type SubmitterHeader struct {
	Name  string
	Email string
	Date  string
}

type NormalizeRequest struct {
	Batch  string
	Files  []RawFile
	Header *SubmitterHeader
}

type NormalizeReport struct {
	domain.StageReport
	// Outputs maps original file name to the id of its markdown blob.
	Outputs map[string]string `json:"outputs"`
}

type SplitRequest struct {
	Batch string
	Files []string
}

// GradeRequest selects exams by session key or markdown name. Batch narrows bare
// names to one batch.
type GradeRequest struct {
	Batch string
	Exams []string
}

// GradeReport counts one item per graded section, so Failed is the section error tally.
type GradeReport struct {
	domain.StageReport
	Exams []domain.GradedExam `json:"exams"`
}

type DeliverRequest struct {
	Batch string
	Exams []string
}

type DeliverReport struct {
	domain.StageReport
	Warnings int `json:"warnings"`
}

type UploadRequest struct {
	Batch        string `validate:"required"`
	StudentName  string `validate:"required"`
	StudentEmail string `validate:"required,email"`
	FileName     string `validate:"required"`
	Data         []byte
}

// SubmissionPipeline is the inbound contract for the four grading stages.
type SubmissionPipeline interface {
	Attachments(ctx context.Context) (map[string]string, error)
	Normalize(ctx context.Context, s *domain.Session, req NormalizeRequest) (NormalizeReport, error)
	SplitCandidates(ctx context.Context, batch string) ([]string, error)
	Split(ctx context.Context, s *domain.Session, req SplitRequest) (domain.StageReport, error)
	Grade(ctx context.Context, s *domain.Session, req GradeRequest) (GradeReport, error)
	Deliver(ctx context.Context, s *domain.Session, req DeliverRequest) (DeliverReport, error)
}

// SettingsService loads, validates and persists grading settings.
type SettingsService interface {
	Current() domain.Settings
	Load(ctx context.Context, fileName string) (domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) error
	ConfigFiles(ctx context.Context) ([]string, error)
}

// SessionRegistry tracks live operator sessions.
type SessionRegistry interface {
	Open(settings domain.Settings) *domain.Session
	Get(id string) (*domain.Session, error)
	Close(id string)
}

// UploadService accepts student submissions and processes upload events.
type UploadService interface {
	Batches(ctx context.Context) ([]domain.Batch, error)
	Submit(ctx context.Context, req UploadRequest) (domain.UploadEvent, error)
	Process(ctx context.Context, event domain.UploadEvent) error
}

// BatchJournal reads recorded item outcomes.
type BatchJournal interface {
	History(ctx context.Context, batch string, limit int) ([]domain.ItemOutcome, error)
}
