package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

type memFolder struct {
	name    string
	parent  string
	created time.Time
}

type memFile struct {
	folder  string
	name    string
	data    []byte
	mime    string
	created time.Time
}

// memStore is an in-memory BlobStore.
type memStore struct {
	mu      sync.Mutex
	seq     int
	clock   time.Time
	folders map[string]memFolder
	files   map[string]memFile

	failWrite map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC),
		folders:   map[string]memFolder{},
		files:     map[string]memFile{},
		failWrite: map[string]error{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *memStore) ListFiles(_ context.Context, folderID string, exts ...string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for id, f := range s.files {
		if f.folder != folderID {
			continue
		}
		if len(exts) > 0 && !hasExt(f.name, exts) {
			continue
		}
		out[f.name] = id
	}
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := domain.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (s *memStore) ListFolders(_ context.Context, parentID string) ([]domain.FolderInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.FolderInfo{}
	for id, f := range s.folders {
		if f.parent == parentID {
			out = append(out, domain.FolderInfo{ID: id, Name: f.name, CreatedAt: f.created})
		}
	}
	return out, nil
}

func (s *memStore) FileID(_ context.Context, folderID, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.files {
		if f.folder == folderID && f.name == name {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) FolderID(_ context.Context, parentID, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folderLocked(parentID, name)
}

func (s *memStore) folderLocked(parentID, name string) (string, bool, error) {
	for id, f := range s.folders {
		if f.parent == parentID && f.name == name {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *memStore) EnsureFolder(_ context.Context, parentID, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok, _ := s.folderLocked(parentID, name); ok {
		return id, nil
	}
	id := s.nextID("dir")
	s.folders[id] = memFolder{name: name, parent: parentID, created: s.tick()}
	return id, nil
}

func (s *memStore) ReadBytes(_ context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "read", errors.New(fileID))
	}
	return append([]byte(nil), f.data...), nil
}

func (s *memStore) ReadText(ctx context.Context, fileID string) (string, error) {
	raw, err := s.ReadBytes(ctx, fileID)
	return string(raw), err
}

func (s *memStore) WriteOrReplace(_ context.Context, folderID, name string, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite[name]; err != nil {
		return "", err
	}
	for id, f := range s.files {
		if f.folder == folderID && f.name == name {
			delete(s.files, id)
		}
	}
	id := s.nextID("file")
	s.files[id] = memFile{folder: folderID, name: name, data: append([]byte(nil), data...), mime: mimeType, created: s.tick()}
	return id, nil
}

func (s *memStore) Delete(_ context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileID)
	return nil
}

func (s *memStore) CreatedAt(_ context.Context, fileID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return f.created, nil
}

func (s *memStore) FileName(_ context.Context, fileID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return f.name, nil
}

func (s *memStore) ShareableLink(_ context.Context, fileID string) (string, error) {
	return "https://files.example.test/" + fileID, nil
}

// put stores a file under a folder path, creating folders as needed.
func (s *memStore) put(path []string, name string, data string) string {
	ctx := context.Background()
	parent := ports.RootFolderID
	for _, segment := range path {
		parent, _ = s.EnsureFolder(ctx, parent, segment)
	}
	id, _ := s.WriteOrReplace(ctx, parent, name, []byte(data), "")
	return id
}

// filesIn returns name -> content for a folder path.
func (s *memStore) filesIn(path ...string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := ports.RootFolderID
	for _, segment := range path {
		id, ok, _ := s.folderLocked(parent, segment)
		if !ok {
			return map[string]string{}
		}
		parent = id
	}
	out := map[string]string{}
	for _, f := range s.files {
		if f.folder == parent {
			out[f.name] = string(f.data)
		}
	}
	return out
}

// fakeConverter prefixes output so tests can see the conversion happened.
type fakeConverter struct {
	failOn map[string]bool
	calls  []string
}

func (c *fakeConverter) Convert(_ context.Context, data []byte, from, to domain.Format) ([]byte, error) {
	c.calls = append(c.calls, string(from)+"->"+string(to))
	if c.failOn[string(data)] {
		return nil, domain.WrapError(domain.ErrConversion, "convert", errors.New("corrupt document"))
	}
	if to == domain.FormatDocx {
		return []byte("DOCX:" + string(data)), nil
	}
	return []byte("converted " + string(data)), nil
}

// fakeExtractor answers split and score instructions from callbacks.
type fakeExtractor struct {
	split func(document string) (mockExamShape, error)
	score func(feedback string) (scoreCard, error)
	calls int
}

func (e *fakeExtractor) Extract(_ context.Context, instruction, document string, target any) error {
	e.calls++
	var value any
	var err error
	switch {
	case strings.HasPrefix(instruction, "Analyze this student's mock exam"):
		if e.split == nil {
			return errors.New("unexpected split call")
		}
		value, err = e.split(document)
	case instruction == scoreInstruction:
		if e.score == nil {
			value = scoreCard{Score: 10}
		} else {
			value, err = e.score(document)
		}
	default:
		return fmt.Errorf("unexpected instruction %q", instruction)
	}
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func threeParts(document string) (mockExamShape, error) {
	return mockExamShape{
		Name:       "Alice Martin",
		Date:       "2025-02-10",
		Synthese:   "synthese of " + document,
		Essai:      "essai of " + document,
		Traduction: "traduction of " + document,
	}, nil
}

type gradingRun struct {
	rubric string
	text   string
	polls  int
}

// fakeGrader completes runs after a number of polls, or ends them with a scripted status.
type fakeGrader struct {
	mu           sync.Mutex
	seq          int
	sessions     map[string]*gradingRun
	closed       []string
	pollsToDone  int
	finalStatus  map[string]domain.RunStatus
	createErr    map[string]error
	statusCalled int
}

func newFakeGrader() *fakeGrader {
	return &fakeGrader{
		sessions:    map[string]*gradingRun{},
		finalStatus: map[string]domain.RunStatus{},
		createErr:   map[string]error{},
	}
}

func (g *fakeGrader) CreateSession(_ context.Context, rubricID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.createErr[rubricID]; err != nil {
		return "", err
	}
	g.seq++
	id := fmt.Sprintf("thread_%d", g.seq)
	g.sessions[id] = &gradingRun{rubric: rubricID}
	return id, nil
}

func (g *fakeGrader) Submit(_ context.Context, sessionID, _ string, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.sessions[sessionID]
	if !ok {
		return "", errors.New("unknown session")
	}
	run.text = text
	return "run_" + sessionID, nil
}

func (g *fakeGrader) RunStatus(_ context.Context, sessionID, _ string) (domain.RunStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalled++
	run := g.sessions[sessionID]
	run.polls++
	if status, ok := g.finalStatus[run.rubric]; ok {
		return status, nil
	}
	if run.polls > g.pollsToDone {
		return domain.RunCompleted, nil
	}
	return domain.RunInProgress, nil
}

func (g *fakeGrader) Reply(_ context.Context, sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run := g.sessions[sessionID]
	return "Feedback from " + run.rubric + " on: " + run.text, nil
}

func (g *fakeGrader) CloseSession(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = append(g.closed, sessionID)
	return nil
}

type fakeMailer struct {
	sent []domain.EmailMessage
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg domain.EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeJournal struct {
	mu       sync.Mutex
	outcomes []domain.ItemOutcome
}

func (j *fakeJournal) Record(_ context.Context, outcome domain.ItemOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, outcome)
	return nil
}

func (j *fakeJournal) ListByBatch(_ context.Context, batch string, _ int) ([]domain.ItemOutcome, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []domain.ItemOutcome{}
	for _, o := range j.outcomes {
		if o.Batch == batch {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeGradebook struct {
	rows []domain.GradeRow
	err  error
}

func (g *fakeGradebook) Upsert(existing []byte, row domain.GradeRow) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.rows = append(g.rows, row)
	return append(existing, []byte(row.Student+"\n")...), nil
}

type fakeObserver struct {
	mu    sync.Mutex
	items map[domain.ItemStatus]int
}

func (o *fakeObserver) ObserveItem(_ domain.Stage, status domain.ItemStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.items == nil {
		o.items = map[domain.ItemStatus]int{}
	}
	o.items[status]++
}

type fakeQueue struct {
	published []domain.UploadEvent
	err       error
}

func (q *fakeQueue) PublishUpload(_ context.Context, event domain.UploadEvent) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, event)
	return nil
}

func (q *fakeQueue) SubscribeUploads(context.Context, func(context.Context, domain.UploadEvent) error) error {
	return errors.New("not implemented")
}

const testBatch = "Mock Exams Feb 2025"

var testLayout = Layout{AttachmentsFolder: "attachments", OutputFolder: "graded", ConfigFolder: "config"}

type pipelineFixture struct {
	store     *memStore
	converter *fakeConverter
	extractor *fakeExtractor
	grader    *fakeGrader
	mailer    *fakeMailer
	journal   *fakeJournal
	gradebook *fakeGradebook
	observer  *fakeObserver
	pipeline  *Pipeline
	session   *domain.Session
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		store:     newMemStore(),
		converter: &fakeConverter{failOn: map[string]bool{}},
		extractor: &fakeExtractor{split: threeParts},
		grader:    newFakeGrader(),
		mailer:    &fakeMailer{},
		journal:   &fakeJournal{},
		gradebook: &fakeGradebook{},
		observer:  &fakeObserver{},
	}
	f.pipeline = NewPipeline(PipelineDeps{
		Store:     f.store,
		Converter: f.converter,
		Extractor: f.extractor,
		Grader:    f.grader,
		Mailer:    f.mailer,
		Journal:   f.journal,
		Gradebook: f.gradebook,
		Observer:  f.observer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, PipelineConfig{
		Layout:          testLayout,
		InstructorEmail: "prof@example.com",
		GradeTimeout:    time.Second,
		PollInterval:    time.Millisecond,
		MaxPolls:        20,
	})
	settings := domain.DefaultSettings(domain.Rubrics{Synthese: "asst_s", Essai: "asst_e", Traduction: "asst_t"})
	f.session = domain.NewSession("session-1", settings, time.Now())
	return f
}

// splitAlice stores a normalized blob and splits it into the session.
func (f *pipelineFixture) splitAlice() {
	f.store.put([]string{testLayout.OutputFolder, testBatch}, "Alice.md", "Alice's exam")
	_, _ = f.pipeline.Split(context.Background(), f.session, ports.SplitRequest{Files: []string{"Alice.md"}})
}
