package model

import (
	"time"
)

// DispatchJob is the unit of work pulled off the job queue.
// It carries everything a worker needs to run one submission.
type DispatchJob struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	SourceCode   string `json:"source_code"`
	LanguageID   int    `json:"language_id"`
	Stdin        string `json:"stdin"`
}

// Submission is the persisted record the pipeline reads and mutates.
type Submission struct {
	SubmissionID  string
	UserID        string
	SourceCode    string
	LanguageID    int
	Status        Status
	Stdout        string
	Stderr        string
	ExecutionTime float64
	CreatedAt     time.Time
}

// ExecutionResult is a normalized response from an execution node.
type ExecutionResult struct {
	StatusID int
	Stdout   string
	Stderr   string
	Time     float64
}
