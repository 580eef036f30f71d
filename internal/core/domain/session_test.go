package domain

import (
	"testing"
	"time"
)

func TestResolveExamAcrossBatches(t *testing.T) {
	s := NewSession("s1", DefaultSettings(Rubrics{}), time.Now())
	s.PutExam(ExamKey("Feb", "Alice.md"), MockExam{})
	s.PutExam(ExamKey("Mar", "Alice.md"), MockExam{})
	s.PutExam(ExamKey("Mar", "Bob.md"), MockExam{})

	if got, err := s.ResolveExam("", "Bob.md"); err != nil || got != ExamKey("Mar", "Bob.md") {
		t.Fatalf("unique bare name: got %q, %v", got, err)
	}
	if got, err := s.ResolveExam("", ExamKey("Feb", "Alice.md")); err != nil || got != ExamKey("Feb", "Alice.md") {
		t.Fatalf("full key: got %q, %v", got, err)
	}
	if got, err := s.ResolveExam("Feb", "Alice.md"); err != nil || got != ExamKey("Feb", "Alice.md") {
		t.Fatalf("batch filter: got %q, %v", got, err)
	}
	if _, err := s.ResolveExam("", "Alice.md"); !IsKind(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for ambiguous name, got %v", err)
	}
	if _, err := s.ResolveExam("Feb", "Bob.md"); !IsKind(err, ErrNotFound) {
		t.Fatalf("expected not found outside the batch, got %v", err)
	}
	if _, err := s.ResolveExam("", "Carol.md"); !IsKind(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.ResolveGraded("", "Bob.md"); !IsKind(err, ErrNotFound) {
		t.Fatalf("split exam must not resolve as graded, got %v", err)
	}
}
