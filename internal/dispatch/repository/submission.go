package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/db"
	"judgehub/internal/dispatch/model"
	appErr "judgehub/pkg/errors"
	"judgehub/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	statusCacheKeyPrefix  = "submission:status:"
	defaultStatusCacheTTL = 24 * time.Hour
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrInvalidTransition means a status write would move a submission
	// backwards, or the row is not in the expected prior state.
	ErrInvalidTransition = errors.New("submission status transition is not allowed")
)

// StatusSnapshot is the cached view of one submission's progress.
type StatusSnapshot struct {
	SubmissionID  string       `json:"submission_id"`
	Status        model.Status `json:"status"`
	Stdout        string       `json:"stdout,omitempty"`
	Stderr        string       `json:"stderr,omitempty"`
	ExecutionTime float64      `json:"execution_time,omitempty"`
}

// SubmissionStore persists and mutates submission state.
// Status writes are guarded so transitions only move forward.
type SubmissionStore interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, submissionID string) (*model.Submission, error)
	GetStatus(ctx context.Context, submissionID string) (StatusSnapshot, error)
	MarkProcessing(ctx context.Context, submissionID string) error
	SaveResult(ctx context.Context, submissionID string, status model.Status, stdout, stderr string, executionTime float64) error
	SaveFailure(ctx context.Context, submissionID, errMsg string) error
}

// PostgresSubmissionStore implements SubmissionStore with PostgreSQL and
// a write-through status mirror in Redis for cheap polling.
type PostgresSubmissionStore struct {
	db       db.Database
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewSubmissionStore creates a submission store.
func NewSubmissionStore(database db.Database, cacheClient cache.Cache, cacheTTL time.Duration) *PostgresSubmissionStore {
	if cacheTTL <= 0 {
		cacheTTL = defaultStatusCacheTTL
	}
	return &PostgresSubmissionStore{
		db:       database,
		cache:    cacheClient,
		cacheTTL: cacheTTL,
	}
}

const submissionColumns = "submission_id, user_id, source_code, language_id, status, stdout, stderr, execution_time, created_at"

// Create inserts a new PENDING submission record.
func (s *PostgresSubmissionStore) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.UserID == "" {
		return errors.New("userID is required")
	}
	if submission.SourceCode == "" {
		return errors.New("sourceCode is required")
	}
	if submission.LanguageID <= 0 {
		return errors.New("languageID is required")
	}
	if submission.Status == "" {
		submission.Status = model.StatusPending
	}

	query := `
		INSERT INTO submissions
		(submission_id, user_id, source_code, language_id, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.UserID,
		submission.SourceCode,
		submission.LanguageID,
		string(submission.Status),
	)
	if err != nil {
		return err
	}
	s.mirrorStatus(ctx, StatusSnapshot{
		SubmissionID: submission.SubmissionID,
		Status:       submission.Status,
	})
	return nil
}

// GetByID loads one submission from the database.
func (s *PostgresSubmissionStore) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE submission_id = $1`
	row := s.db.QueryRow(ctx, query, submissionID)

	var submission model.Submission
	var status string
	err := row.Scan(
		&submission.SubmissionID,
		&submission.UserID,
		&submission.SourceCode,
		&submission.LanguageID,
		&status,
		&submission.Stdout,
		&submission.Stderr,
		&submission.ExecutionTime,
		&submission.CreatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	submission.Status = model.Status(status)
	return &submission, nil
}

// GetStatus returns the submission's progress, preferring the cache mirror.
func (s *PostgresSubmissionStore) GetStatus(ctx context.Context, submissionID string) (StatusSnapshot, error) {
	if submissionID == "" {
		return StatusSnapshot{}, errors.New("submissionID is required")
	}
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, statusCacheKeyPrefix+submissionID)
		if err == nil && raw != "" {
			var snapshot StatusSnapshot
			if err := json.Unmarshal([]byte(raw), &snapshot); err == nil {
				return snapshot, nil
			}
		}
	}

	submission, err := s.GetByID(ctx, submissionID)
	if err != nil {
		return StatusSnapshot{}, err
	}
	snapshot := StatusSnapshot{
		SubmissionID:  submission.SubmissionID,
		Status:        submission.Status,
		Stdout:        submission.Stdout,
		Stderr:        submission.Stderr,
		ExecutionTime: submission.ExecutionTime,
	}
	s.mirrorStatus(ctx, snapshot)
	return snapshot, nil
}

// MarkProcessing claims a PENDING submission for execution.
func (s *PostgresSubmissionStore) MarkProcessing(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `UPDATE submissions SET status = $1 WHERE submission_id = $2 AND status = $3`
	result, err := s.db.Exec(ctx, query, string(model.StatusProcessing), submissionID, string(model.StatusPending))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	s.mirrorStatus(ctx, StatusSnapshot{
		SubmissionID: submissionID,
		Status:       model.StatusProcessing,
	})
	return nil
}

// SaveResult records the terminal verdict and captured output.
func (s *PostgresSubmissionStore) SaveResult(ctx context.Context, submissionID string, status model.Status, stdout, stderr string, executionTime float64) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	if !status.IsTerminal() {
		return appErr.Newf(appErr.InvalidTransition, "status %s is not terminal", status)
	}
	query := `
		UPDATE submissions
		SET status = $1, stdout = $2, stderr = $3, execution_time = $4
		WHERE submission_id = $5 AND status = $6
	`
	result, err := s.db.Exec(ctx, query, string(status), stdout, stderr, executionTime, submissionID, string(model.StatusProcessing))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	s.mirrorStatus(ctx, StatusSnapshot{
		SubmissionID:  submissionID,
		Status:        status,
		Stdout:        stdout,
		Stderr:        stderr,
		ExecutionTime: executionTime,
	})
	return nil
}

// SaveFailure records an infrastructure failure as FAILED with the error
// text in stderr, matching what the client is told.
func (s *PostgresSubmissionStore) SaveFailure(ctx context.Context, submissionID, errMsg string) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET status = $1, stderr = $2
		WHERE submission_id = $3 AND status IN ($4, $5)
	`
	result, err := s.db.Exec(ctx, query, string(model.StatusFailed), errMsg, submissionID, string(model.StatusPending), string(model.StatusProcessing))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	s.mirrorStatus(ctx, StatusSnapshot{
		SubmissionID: submissionID,
		Status:       model.StatusFailed,
		Stderr:       errMsg,
	})
	return nil
}

// mirrorStatus writes the snapshot to the cache. Cache failures never
// fail the pipeline; the database row stays authoritative.
func (s *PostgresSubmissionStore) mirrorStatus(ctx context.Context, snapshot StatusSnapshot) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCacheKeyPrefix+snapshot.SubmissionID, string(payload), s.cacheTTL); err != nil {
		logger.Warn(ctx, "mirror submission status failed",
			zap.String("submission_id", snapshot.SubmissionID), zap.Error(err))
	}
}
