package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

// UploadUseCase accepts student submissions into a batch folder and normalizes
// them when the upload event is consumed.
type UploadUseCase struct {
	store    ports.BlobStore
	queue    ports.UploadQueue
	pipeline *Pipeline
	settings ports.SettingsService
	now      func() time.Time
}

func NewUploadUseCase(
	store ports.BlobStore,
	queue ports.UploadQueue,
	pipeline *Pipeline,
	settings ports.SettingsService,
) *UploadUseCase {
	return &UploadUseCase{
		store:    store,
		queue:    queue,
		pipeline: pipeline,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Batches lists batch folders, newest first.
func (uc *UploadUseCase) Batches(ctx context.Context) ([]domain.Batch, error) {
	root, err := uc.pipeline.outputRoot(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := uc.store.ListFolders(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list batch folders: %w", err)
	}
	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].CreatedAt.After(folders[j].CreatedAt)
	})
	batches := make([]domain.Batch, 0, len(folders))
	for _, f := range folders {
		batches = append(batches, domain.Batch{Name: f.Name, FolderID: f.ID, CreatedAt: f.CreatedAt})
	}
	return batches, nil
}

func (uc *UploadUseCase) Submit(ctx context.Context, req ports.UploadRequest) (domain.UploadEvent, error) {
	if err := domain.ValidateStruct("upload", req); err != nil {
		return domain.UploadEvent{}, err
	}
	if len(req.Data) == 0 {
		return domain.UploadEvent{}, domain.NewValidationError("upload", domain.FieldError{Field: "file", Message: "is empty"})
	}
	format, err := domain.FormatFromFileName(req.FileName)
	if err != nil {
		return domain.UploadEvent{}, err
	}
	if !format.Uploadable() {
		return domain.UploadEvent{}, domain.NewValidationError("upload", domain.FieldError{Field: "file", Message: "must be a docx, odt or pdf document"})
	}
	if err := domain.ValidateBlobName(req.FileName); err != nil {
		return domain.UploadEvent{}, err
	}
	if domain.IsDerivedArtifact(req.FileName) {
		return domain.UploadEvent{}, domain.NewValidationError("upload", domain.FieldError{Field: "file", Message: "uses a reserved name"})
	}

	batchID, err := uc.pipeline.batchFolder(ctx, req.Batch)
	if err != nil {
		return domain.UploadEvent{}, err
	}
	fileID, err := uc.store.WriteOrReplace(ctx, batchID, req.FileName, req.Data, format.MimeType())
	if err != nil {
		return domain.UploadEvent{}, fmt.Errorf("store upload: %w", err)
	}

	event := domain.UploadEvent{
		BatchFolderID: batchID,
		Batch:         req.Batch,
		FileID:        fileID,
		FileName:      req.FileName,
		StudentName:   req.StudentName,
		StudentEmail:  req.StudentEmail,
		SubmittedAt:   uc.now(),
	}
	if err := uc.queue.PublishUpload(ctx, event); err != nil {
		return domain.UploadEvent{}, fmt.Errorf("publish upload event: %w", err)
	}
	return event, nil
}

// Process normalizes the uploaded file with the submitter header prepended.
func (uc *UploadUseCase) Process(ctx context.Context, event domain.UploadEvent) error {
	session := domain.NewSession(uuid.NewString(), uc.settings.Current(), uc.now())
	report, err := uc.pipeline.Normalize(ctx, session, ports.NormalizeRequest{
		Batch: event.Batch,
		Files: []ports.RawFile{{ID: event.FileID, Name: event.FileName}},
		Header: &ports.SubmitterHeader{
			Name:  event.StudentName,
			Email: event.StudentEmail,
			Date:  event.SubmittedAt.Format("2006-01-02"),
		},
	})
	if err != nil {
		return fmt.Errorf("normalize upload: %w", err)
	}
	if report.Failed > 0 {
		return domain.WrapError(domain.ErrConversion, "normalize upload", fmt.Errorf("%s: %s", event.FileName, report.Items[len(report.Items)-1].Error))
	}
	return nil
}
