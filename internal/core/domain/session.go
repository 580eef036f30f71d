package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const examKeySep = "/"

// ExamKey identifies an exam within a session. The same markdown name may be
// split from several batches.
func ExamKey(batch, name string) string {
	return batch + examKeySep + name
}

// Session holds the in-memory state of one operator's pipeline run: the settings
// snapshot and the exams produced by split and grade. Stage calls on the same
// session are serialized with Lock/Unlock.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	settings Settings
	exams    map[string]MockExam
	graded   map[string]GradedExam
}

func NewSession(id string, settings Settings, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		settings:  settings,
		exams:     make(map[string]MockExam),
		graded:    make(map[string]GradedExam),
	}
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// The accessors below expect the caller to hold the session lock.

func (s *Session) Settings() Settings { return s.settings }

func (s *Session) SetSettings(settings Settings) { s.settings = settings }

func (s *Session) Exam(name string) (MockExam, bool) {
	exam, ok := s.exams[name]
	return exam, ok
}

func (s *Session) PutExam(name string, exam MockExam) { s.exams[name] = exam }

func (s *Session) ExamNames() []string {
	return sortedKeys(s.exams)
}

func (s *Session) Graded(name string) (GradedExam, bool) {
	g, ok := s.graded[name]
	return g, ok
}

func (s *Session) PutGraded(name string, g GradedExam) { s.graded[name] = g }

func (s *Session) GradedNames() []string {
	return sortedKeys(s.graded)
}

// ResolveExam maps a selection entry to the key of a split exam. ref is either
// a full key or a markdown name; a bare name is looked up in batch when batch is
// set and must otherwise be unique across batches.
func (s *Session) ResolveExam(batch, ref string) (string, error) {
	return resolveKey(s.exams, batch, ref)
}

// ResolveGraded is ResolveExam for graded exams.
func (s *Session) ResolveGraded(batch, ref string) (string, error) {
	return resolveKey(s.graded, batch, ref)
}

func resolveKey[V any](m map[string]V, batch, ref string) (string, error) {
	if _, ok := m[ref]; ok {
		return ref, nil
	}
	if batch != "" {
		key := ExamKey(batch, ref)
		if _, ok := m[key]; ok {
			return key, nil
		}
		return "", WrapError(ErrNotFound, "resolve exam", fmt.Errorf("%q in batch %q", ref, batch))
	}

	var found []string
	for key := range m {
		if strings.HasSuffix(key, examKeySep+ref) {
			found = append(found, key)
		}
	}
	switch len(found) {
	case 0:
		return "", WrapError(ErrNotFound, "resolve exam", fmt.Errorf("%q", ref))
	case 1:
		return found[0], nil
	default:
		sort.Strings(found)
		return "", WrapError(ErrInvalidInput, "resolve exam",
			fmt.Errorf("%q is in several batches (%s); select a batch", ref, strings.Join(found, ", ")))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
