package model

// ResultEvent is the terminal notification pushed toward the owning user.
// It is ephemeral: delivered at most once, never persisted.
type ResultEvent struct {
	UserID       string  `json:"user_id"`
	SubmissionID string  `json:"submission_id"`
	Status       Status  `json:"status"`
	Stdout       string  `json:"stdout,omitempty"`
	Stderr       string  `json:"stderr,omitempty"`
	Time         float64 `json:"time,omitempty"`
	// Error is set only for FAILED outcomes.
	Error string `json:"error,omitempty"`
}
