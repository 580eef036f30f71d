package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
	"github.com/kirillkom/grading-assistant/internal/core/usecase"
)

type fakePipeline struct {
	mu        sync.Mutex
	normalize ports.NormalizeRequest
	grade     ports.GradeRequest
	err       error
}

func (f *fakePipeline) Attachments(context.Context) (map[string]string, error) {
	return map[string]string{"Alice.docx": "att-1"}, f.err
}

func (f *fakePipeline) Normalize(_ context.Context, _ *domain.Session, req ports.NormalizeRequest) (ports.NormalizeReport, error) {
	f.mu.Lock()
	f.normalize = req
	f.mu.Unlock()
	if f.err != nil {
		return ports.NormalizeReport{}, f.err
	}
	report := ports.NormalizeReport{
		StageReport: domain.StageReport{Stage: domain.StageNormalize, Batch: req.Batch},
		Outputs:     map[string]string{},
	}
	for _, file := range req.Files {
		report.Add(domain.ItemOutcome{Item: file.Name, Status: domain.ItemSucceeded})
		report.Outputs[file.Name] = "md-" + file.ID
	}
	return report, nil
}

func (f *fakePipeline) SplitCandidates(_ context.Context, batch string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"Alice.md"}, nil
}

func (f *fakePipeline) Split(_ context.Context, s *domain.Session, req ports.SplitRequest) (domain.StageReport, error) {
	if f.err != nil {
		return domain.StageReport{}, f.err
	}
	s.Lock()
	defer s.Unlock()
	for _, name := range req.Files {
		s.PutExam(name, domain.MockExam{Submission: domain.Submission{Name: "Alice"}})
	}
	return domain.StageReport{Stage: domain.StageSplit, Succeeded: len(req.Files)}, nil
}

func (f *fakePipeline) Grade(_ context.Context, _ *domain.Session, req ports.GradeRequest) (ports.GradeReport, error) {
	f.mu.Lock()
	f.grade = req
	f.mu.Unlock()
	if f.err != nil {
		return ports.GradeReport{}, f.err
	}
	return ports.GradeReport{StageReport: domain.StageReport{Stage: domain.StageGrade}}, nil
}

func (f *fakePipeline) Deliver(context.Context, *domain.Session, ports.DeliverRequest) (ports.DeliverReport, error) {
	if f.err != nil {
		return ports.DeliverReport{}, f.err
	}
	return ports.DeliverReport{StageReport: domain.StageReport{Stage: domain.StageDeliver}, Warnings: 1}, nil
}

type fakeSettings struct {
	current domain.Settings
	saved   *domain.Settings
}

func (f *fakeSettings) Current() domain.Settings { return f.current }

func (f *fakeSettings) Load(_ context.Context, fileName string) (domain.Settings, error) {
	if fileName == "missing.json" {
		return domain.Settings{}, domain.WrapError(domain.ErrNotFound, "load settings", errors.New(fileName))
	}
	return f.current, nil
}

func (f *fakeSettings) Save(_ context.Context, settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	f.saved = &settings
	f.current = settings
	return nil
}

func (f *fakeSettings) ConfigFiles(context.Context) ([]string, error) {
	return []string{"gaconfig.json"}, nil
}

type fakeUploads struct {
	submitted *ports.UploadRequest
}

func (f *fakeUploads) Batches(context.Context) ([]domain.Batch, error) {
	return []domain.Batch{{Name: "Mock Exams Feb 2025", FolderID: "b-1"}}, nil
}

func (f *fakeUploads) Submit(_ context.Context, req ports.UploadRequest) (domain.UploadEvent, error) {
	if err := domain.ValidateStruct("submit upload", req); err != nil {
		return domain.UploadEvent{}, err
	}
	f.submitted = &req
	return domain.UploadEvent{Batch: req.Batch, FileID: "f-1", FileName: req.FileName, StudentEmail: req.StudentEmail}, nil
}

func (f *fakeUploads) Process(context.Context, domain.UploadEvent) error { return nil }

type fakeJournal struct {
	batch string
	limit int
}

func (f *fakeJournal) History(_ context.Context, batch string, limit int) ([]domain.ItemOutcome, error) {
	f.batch, f.limit = batch, limit
	return []domain.ItemOutcome{{Batch: batch, Item: "Alice.docx", Status: domain.ItemSucceeded}}, nil
}

type fakeBlobs struct {
	ports.BlobStore
	files map[string]string
	data  map[string][]byte
}

func (f *fakeBlobs) FileName(_ context.Context, id string) (string, error) {
	name, ok := f.files[id]
	if !ok {
		return "", domain.WrapError(domain.ErrNotFound, "file name", errors.New(id))
	}
	return name, nil
}

func (f *fakeBlobs) ReadBytes(_ context.Context, id string) ([]byte, error) {
	return f.data[id], nil
}

type testEnv struct {
	pipeline *fakePipeline
	settings *fakeSettings
	sessions *usecase.SessionRegistry
	uploads  *fakeUploads
	journal  *fakeJournal
	handler  http.Handler
}

func validSettings() domain.Settings {
	return domain.DefaultSettings(domain.Rubrics{Synthese: "asst_s", Essai: "asst_e", Traduction: "asst_t"})
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		pipeline: &fakePipeline{},
		settings: &fakeSettings{current: validSettings()},
		sessions: usecase.NewSessionRegistry(),
		uploads:  &fakeUploads{},
		journal:  &fakeJournal{},
	}
	blobs := &fakeBlobs{
		files: map[string]string{"r-1": "Alice - assessment.docx"},
		data:  map[string][]byte{"r-1": []byte("DOCX")},
	}
	if opts.BackpressureWait == 0 {
		opts.BackpressureWait = 20 * time.Millisecond
	}
	env.handler = NewRouter(Deps{
		Pipeline: env.pipeline,
		Settings: env.settings,
		Sessions: env.sessions,
		Uploads:  env.uploads,
		Journal:  env.journal,
		Blobs:    blobs,
	}, opts).Handler()
	return env
}
