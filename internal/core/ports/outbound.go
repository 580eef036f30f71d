package ports

import (
	"context"
	"time"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

// RootFolderID addresses the top of a blob store.
const RootFolderID = ""

// BlobStore is a folder/file tree addressed by opaque ids.
type BlobStore interface {
	// ListFiles maps file name to id for direct children of folderID, optionally
	// filtered by extension (without the dot).
	ListFiles(ctx context.Context, folderID string, exts ...string) (map[string]string, error)
	ListFolders(ctx context.Context, parentID string) ([]domain.FolderInfo, error)
	FileID(ctx context.Context, folderID, name string) (string, bool, error)
	FolderID(ctx context.Context, parentID, name string) (string, bool, error)
	// EnsureFolder returns the existing folder id or creates it.
	EnsureFolder(ctx context.Context, parentID, name string) (string, error)
	ReadBytes(ctx context.Context, fileID string) ([]byte, error)
	ReadText(ctx context.Context, fileID string) (string, error)
	// WriteOrReplace removes any same-named file in folderID before writing.
	WriteOrReplace(ctx context.Context, folderID, name string, data []byte, mimeType string) (string, error)
	Delete(ctx context.Context, fileID string) error
	// CreatedAt is when the current content was written. A replaced file
	// counts as new.
	CreatedAt(ctx context.Context, fileID string) (time.Time, error)
	FileName(ctx context.Context, fileID string) (string, error)
	ShareableLink(ctx context.Context, fileID string) (string, error)
}

// FormatConverter translates a document between formats.
type FormatConverter interface {
	Convert(ctx context.Context, data []byte, from, to domain.Format) ([]byte, error)
}

// StructuredExtractor fills target from a document according to instruction.
type StructuredExtractor interface {
	Extract(ctx context.Context, instruction, document string, target any) error
}

// GradingBackend runs a rubric assistant over a text in an isolated session.
type GradingBackend interface {
	CreateSession(ctx context.Context, rubricID string) (string, error)
	Submit(ctx context.Context, sessionID, rubricID, text string) (string, error)
	RunStatus(ctx context.Context, sessionID, runID string) (domain.RunStatus, error)
	Reply(ctx context.Context, sessionID string) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Mailer sends a single email message.
type Mailer interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

// RunJournal records per-item stage outcomes.
type RunJournal interface {
	Record(ctx context.Context, outcome domain.ItemOutcome) error
	ListByBatch(ctx context.Context, batch string, limit int) ([]domain.ItemOutcome, error)
}

// Gradebook upserts a row into an encoded batch workbook. existing may be nil.
type Gradebook interface {
	Upsert(existing []byte, row domain.GradeRow) ([]byte, error)
}

// UploadQueue publishes/consumes student upload events.
type UploadQueue interface {
	PublishUpload(ctx context.Context, event domain.UploadEvent) error
	SubscribeUploads(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// PipelineObserver receives per-item timings.
type PipelineObserver interface {
	ObserveItem(stage domain.Stage, status domain.ItemStatus, duration time.Duration)
}
