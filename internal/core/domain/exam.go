package domain

import (
	"strings"
	"time"
)

const (
	MaxSectionScore = 20

	// GradingFailedFeedback replaces the feedback text of a section whose grading call failed.
	GradingFailedFeedback = "Error grading section"
)

// Submission is one student's upload after normalization.
type Submission struct {
	Name             string `json:"name"`
	Date             string `json:"date"`
	Description      string `json:"description,omitempty"`
	OriginalFileID   string `json:"original_file"`
	OriginalFileName string `json:"original_file_name"`
	Markdown         string `json:"markdown_content"`
	WordCount        int    `json:"word_count"`
}

// Normalized reports whether the normalize stage produced text for this submission.
func (s Submission) Normalized() bool {
	return strings.TrimSpace(s.Markdown) != ""
}

// CountWords counts whitespace separated tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

type Section struct {
	Kind      SectionKind `json:"kind"`
	Markdown  string      `json:"markdown_content"`
	WordCount int         `json:"word_count"`
}

func NewSection(kind SectionKind, markdown string) Section {
	return Section{Kind: kind, Markdown: markdown, WordCount: CountWords(markdown)}
}

// MockExam is a submission decomposed into exactly one section per kind. Batch
// and BatchFolderID name the folder it was split from; later stages write there.
type MockExam struct {
	Submission
	Batch         string `json:"batch"`
	BatchFolderID string `json:"batch_folder_id"`

	Synthese   Section `json:"synthese"`
	Essai      Section `json:"essai"`
	Traduction Section `json:"traduction"`
}

func (e MockExam) Section(kind SectionKind) (Section, bool) {
	switch kind {
	case SectionSynthese:
		return e.Synthese, true
	case SectionEssai:
		return e.Essai, true
	case SectionTraduction:
		return e.Traduction, true
	default:
		return Section{}, false
	}
}

// Sections returns the three sections in the fixed order.
func (e MockExam) Sections() []Section {
	return []Section{e.Synthese, e.Essai, e.Traduction}
}

// Complete holds when every slot carries its own kind. Bodies may be empty.
func (e MockExam) Complete() bool {
	return e.Synthese.Kind == SectionSynthese &&
		e.Essai.Kind == SectionEssai &&
		e.Traduction.Kind == SectionTraduction
}

// Assessment is the graded outcome of one section.
type Assessment struct {
	Kind              SectionKind    `json:"kind"`
	Feedback          string         `json:"feedback"`
	ErrorDistribution map[string]int `json:"error_distribution"`
	Score             int            `json:"final_score"`
	Failed            bool           `json:"failed"`
	Error             string         `json:"error,omitempty"`
}

func NewAssessment(kind SectionKind, feedback string, score int, distribution map[string]int) Assessment {
	if distribution == nil {
		distribution = map[string]int{}
	}
	return Assessment{
		Kind:              kind,
		Feedback:          feedback,
		ErrorDistribution: distribution,
		Score:             ClampScore(score),
	}
}

// FailedAssessment carries the sentinel feedback for a section whose grading failed.
func FailedAssessment(kind SectionKind, err error) Assessment {
	a := NewAssessment(kind, GradingFailedFeedback, 0, nil)
	a.Failed = true
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxSectionScore:
		return MaxSectionScore
	default:
		return score
	}
}

// GradedExam is a mock exam with its three assessments.
type GradedExam struct {
	Key         string                     `json:"key"`
	Exam        MockExam                   `json:"exam"`
	Assessments map[SectionKind]Assessment `json:"assessments"`
	FinalScore  float64                    `json:"final_score"`
	GradedAt    time.Time                  `json:"graded_at"`
}

// Complete reports whether every section was graded and scored without error.
func (g GradedExam) Complete() bool {
	for _, kind := range AllSections() {
		a, ok := g.Assessments[kind]
		if !ok || a.Failed || a.Error != "" {
			return false
		}
	}
	return true
}

func (g GradedExam) Scores() map[SectionKind]int {
	out := make(map[SectionKind]int, len(g.Assessments))
	for kind, a := range g.Assessments {
		out[kind] = a.Score
	}
	return out
}

type Batch struct {
	Name      string    `json:"name"`
	FolderID  string    `json:"folder_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FolderInfo describes a folder in the blob store.
type FolderInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GradeRow is one line of a batch gradebook.
type GradeRow struct {
	Student    string
	Date       string
	File       string
	Scores     map[SectionKind]int
	FinalScore float64
	Complete   bool
}

// RunStatus is the state of an asynchronous grading run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
)

// Terminal reports whether polling can stop.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	default:
		return false
	}
}
