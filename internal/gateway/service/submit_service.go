// Package service implements submission intake and result delivery for
// the gateway.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/dispatch/repository"
	appErr "judgehub/pkg/errors"
	"judgehub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	rateUserKeyPrefix = "submit:rate:user:"
	rateIPKeyPrefix   = "submit:rate:ip:"

	defaultMaxCodeBytes = 256 * 1024
)

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
	Window  time.Duration `yaml:"window"`
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB    time.Duration `yaml:"db"`
	Cache time.Duration `yaml:"cache"`
	MQ    time.Duration `yaml:"mq"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	Submissions repository.SubmissionStore
	Queue       mq.Producer
	Cache       cache.Cache

	JobTopic     string
	MaxCodeBytes int
	RateLimit    RateLimitConfig
	Timeouts     TimeoutConfig
}

// SubmitService accepts submissions, persists them as PENDING and hands
// them to the dispatch queue.
type SubmitService struct {
	submissions repository.SubmissionStore
	queue       mq.Producer
	cache       cache.Cache

	jobTopic     string
	maxCodeBytes int
	rateLimit    RateLimitConfig
	timeouts     TimeoutConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	UserID     string
	SourceCode string
	LanguageID int
	Stdin      string
	ClientIP   string
}

// SubmitOutput is what the caller gets back once the submission is queued.
type SubmitOutput struct {
	SubmissionID string       `json:"submission_id"`
	Status       model.Status `json:"status"`
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if cfg.JobTopic == "" {
		return nil, fmt.Errorf("job topic is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &SubmitService{
		submissions:  cfg.Submissions,
		queue:        cfg.Queue,
		cache:        cfg.Cache,
		jobTopic:     cfg.JobTopic,
		maxCodeBytes: cfg.MaxCodeBytes,
		rateLimit:    cfg.RateLimit,
		timeouts:     cfg.Timeouts,
	}, nil
}

// Submit validates the request, records a PENDING submission and
// publishes the dispatch job. The caller gets the submission id right
// away; the verdict arrives later over the notification channel.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (SubmitOutput, error) {
	if err := s.validateInput(input); err != nil {
		return SubmitOutput{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return SubmitOutput{}, err
	}

	submissionID := uuid.NewString()
	submission := &model.Submission{
		SubmissionID: submissionID,
		UserID:       input.UserID,
		SourceCode:   input.SourceCode,
		LanguageID:   input.LanguageID,
		Status:       model.StatusPending,
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		return SubmitOutput{}, err
	}

	if err := s.publishJob(ctx, model.DispatchJob{
		SubmissionID: submissionID,
		UserID:       input.UserID,
		SourceCode:   input.SourceCode,
		LanguageID:   input.LanguageID,
		Stdin:        input.Stdin,
	}); err != nil {
		return SubmitOutput{}, err
	}

	logger.Info(ctx, "submission queued",
		zap.String("submission_id", submissionID),
		zap.String("user_id", input.UserID),
		zap.Int("language_id", input.LanguageID))

	return SubmitOutput{SubmissionID: submissionID, Status: model.StatusPending}, nil
}

// GetStatus returns the current progress of one submission. Clients
// poll this when a notification was missed.
func (s *SubmitService) GetStatus(ctx context.Context, submissionID string) (repository.StatusSnapshot, error) {
	if strings.TrimSpace(submissionID) == "" {
		return repository.StatusSnapshot{}, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	snapshot, err := s.submissions.GetStatus(ctxDB.ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return repository.StatusSnapshot{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return repository.StatusSnapshot{}, appErr.Wrapf(err, appErr.DatabaseError, "get submission status failed")
	}
	return snapshot, nil
}

func (s *SubmitService) validateInput(input SubmitInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if input.LanguageID <= 0 {
		return appErr.ValidationError("language_id", "required")
	}
	if len([]byte(input.SourceCode)) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	return nil
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID, clientIP string) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	if s.rateLimit.UserMax > 0 && userID != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateUserKeyPrefix+userID, s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctxCache.ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.TooManyRequests).WithMessage("submit too frequently")
	}
	return nil
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissions.Create(ctxDB.ctx, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) publishJob(ctx context.Context, job model.DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "encode dispatch job failed")
	}
	message := mq.NewMessage(body)
	message.ID = job.SubmissionID

	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.queue.Publish(ctxMQ.ctx, s.jobTopic, message); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "publish dispatch job failed")
	}
	return nil
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
