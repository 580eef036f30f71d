package domain

import "time"

type Stage string

const (
	StageNormalize Stage = "normalize"
	StageSplit     Stage = "split"
	StageGrade     Stage = "grade"
	StageDeliver   Stage = "deliver"
)

type ItemStatus string

const (
	ItemInProgress ItemStatus = "in_progress"
	ItemSucceeded  ItemStatus = "succeeded"
	ItemFailed     ItemStatus = "failed"
)

// ItemOutcome is the per-item record of a stage run.
type ItemOutcome struct {
	RunID      string     `json:"run_id"`
	Batch      string     `json:"batch"`
	Stage      Stage      `json:"stage"`
	Item       string     `json:"item"`
	Status     ItemStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// StageReport counts item outcomes of one stage invocation.
type StageReport struct {
	RunID     string        `json:"run_id"`
	Stage     Stage         `json:"stage"`
	Batch     string        `json:"batch"`
	Items     []ItemOutcome `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

func (r *StageReport) Add(outcome ItemOutcome) {
	r.Items = append(r.Items, outcome)
	switch outcome.Status {
	case ItemSucceeded:
		r.Succeeded++
	case ItemFailed:
		r.Failed++
	}
}

// UploadEvent is published when a student upload lands in a batch folder.
type UploadEvent struct {
	BatchFolderID string    `json:"batch_folder_id"`
	Batch         string    `json:"batch"`
	FileID        string    `json:"file_id"`
	FileName      string    `json:"file_name"`
	StudentName   string    `json:"student_name"`
	StudentEmail  string    `json:"student_email"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
