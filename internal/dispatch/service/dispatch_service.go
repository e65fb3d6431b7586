// Package service drives queued submissions through node selection,
// remote execution, persistence and result notification.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/judgeclient"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/dispatch/repository"
	"judgehub/internal/dispatch/selector"
	appErr "judgehub/pkg/errors"
	"judgehub/pkg/utils/logger"

	"go.uber.org/zap"
)

// RetryPolicy names how the worker treats a failed job.
type RetryPolicy string

const (
	// RetryPolicyNone swallows job-level failures so the queue never
	// redelivers a submission. A failure caused by the user's own code
	// (an infinite loop hitting the timeout) must not be retried.
	RetryPolicyNone RetryPolicy = "none"
)

const defaultWorkerPoolSize = 8

// Config holds dispatch service dependencies and settings.
type Config struct {
	Store    repository.SubmissionStore
	Selector *selector.RoundRobin
	Client   judgeclient.Client
	Results  repository.ResultPublisher
	Mapping  model.StatusMapping

	WorkerPoolSize int
	ConsumerGroup  string
	StoreTimeout   time.Duration
	PublishTimeout time.Duration
}

// Service is the dispatch worker pool orchestrator.
type Service struct {
	store    repository.SubmissionStore
	selector *selector.RoundRobin
	client   judgeclient.Client
	results  repository.ResultPublisher
	mapping  model.StatusMapping

	retryPolicy    RetryPolicy
	workerPoolSize int
	consumerGroup  string
	storeTimeout   time.Duration
	publishTimeout time.Duration
}

// NewService creates a dispatch service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("node selector is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("execution client is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result publisher is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultWorkerPoolSize
	}
	mapping := cfg.Mapping
	if mapping.Map(0) == "" {
		mapping = model.DefaultStatusMapping()
	}
	return &Service{
		store:          cfg.Store,
		selector:       cfg.Selector,
		client:         cfg.Client,
		results:        cfg.Results,
		mapping:        mapping,
		retryPolicy:    RetryPolicyNone,
		workerPoolSize: poolSize,
		consumerGroup:  cfg.ConsumerGroup,
		storeTimeout:   cfg.StoreTimeout,
		publishTimeout: cfg.PublishTimeout,
	}, nil
}

// SubscribeOptions returns consumer options sized to the worker pool.
func (s *Service) SubscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup: s.consumerGroup,
		Concurrency:   s.workerPoolSize,
	}
}

// HandleJobMessage processes one queued dispatch job.
// Job-level failures are resolved inside ProcessJob and never returned,
// so the queue does not redeliver (RetryPolicyNone). Undecodable
// messages propagate as unretryable handler errors, which the consumer
// commits without redelivery.
func (s *Service) HandleJobMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return mq.Unretryable(appErr.New(appErr.InvalidParams).WithMessage("message is nil"))
	}
	var job model.DispatchJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return mq.Unretryable(appErr.Wrapf(err, appErr.InvalidParams, "decode dispatch job failed"))
	}
	if job.SubmissionID == "" || job.UserID == "" || job.SourceCode == "" || job.LanguageID <= 0 {
		return mq.Unretryable(appErr.New(appErr.InvalidParams).WithMessage("dispatch job missing required fields"))
	}

	if _, err := s.ProcessJob(ctx, job); err != nil {
		logger.Warn(ctx, "submission resolved as failed",
			zap.String("submission_id", job.SubmissionID),
			zap.String("retry_policy", string(s.retryPolicy)),
			zap.Error(err))
	}
	return nil
}

// ProcessJob runs the per-job procedure and returns the terminal event
// that was produced, plus the remote error when the outcome is FAILED.
func (s *Service) ProcessJob(ctx context.Context, job model.DispatchJob) (model.ResultEvent, error) {
	if err := s.markProcessing(ctx, job.SubmissionID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Already claimed or finished, likely a queue redelivery.
			logger.Warn(ctx, "skip job, submission not claimable",
				zap.String("submission_id", job.SubmissionID))
			return model.ResultEvent{}, nil
		}
		// Store write failures are logged and the job continues; the
		// terminal write below still gets its own attempt.
		logger.Warn(ctx, "mark processing failed",
			zap.String("submission_id", job.SubmissionID), zap.Error(err))
	}

	node := s.selector.Next()
	logger.Info(ctx, "dispatching submission",
		zap.String("submission_id", job.SubmissionID),
		zap.String("node", node.URL))

	started := time.Now()
	result, execErr := s.client.Execute(ctx, node, judgeclient.Request{
		SourceCode: job.SourceCode,
		LanguageID: job.LanguageID,
		Stdin:      job.Stdin,
	})
	if execErr != nil {
		event := s.resolveFailure(ctx, job, node, execErr)
		return event, execErr
	}

	status := s.mapping.Map(result.StatusID)
	if err := s.saveResult(ctx, job.SubmissionID, status, result); err != nil {
		logger.Warn(ctx, "persist result failed",
			zap.String("submission_id", job.SubmissionID), zap.Error(err))
	}

	event := model.ResultEvent{
		UserID:       job.UserID,
		SubmissionID: job.SubmissionID,
		Status:       status,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
		Time:         result.Time,
	}
	s.publish(ctx, event)

	logger.Info(ctx, "submission completed",
		zap.String("submission_id", job.SubmissionID),
		zap.String("node", node.URL),
		zap.String("status", string(status)),
		zap.Float64("execution_time", result.Time),
		zap.Duration("dispatch_latency", time.Since(started)))
	return event, nil
}

// resolveFailure converts a remote error into a FAILED submission and a
// FAILED notification. The error is recorded, never re-raised upstream.
func (s *Service) resolveFailure(ctx context.Context, job model.DispatchJob, node selector.Node, execErr error) model.ResultEvent {
	logger.Warn(ctx, "submission failed on node",
		zap.String("submission_id", job.SubmissionID),
		zap.String("node", node.URL),
		zap.Error(execErr))

	if err := s.saveFailure(ctx, job.SubmissionID, execErr.Error()); err != nil {
		logger.Warn(ctx, "persist failure failed",
			zap.String("submission_id", job.SubmissionID), zap.Error(err))
	}

	event := model.ResultEvent{
		UserID:       job.UserID,
		SubmissionID: job.SubmissionID,
		Status:       model.StatusFailed,
		Error:        execErr.Error(),
	}
	s.publish(ctx, event)
	return event
}

func (s *Service) markProcessing(ctx context.Context, submissionID string) error {
	ctxStore, cancel := s.withTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.MarkProcessing(ctxStore, submissionID)
}

func (s *Service) saveResult(ctx context.Context, submissionID string, status model.Status, result model.ExecutionResult) error {
	ctxStore, cancel := s.withTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.SaveResult(ctxStore, submissionID, status, result.Stdout, result.Stderr, result.Time)
}

func (s *Service) saveFailure(ctx context.Context, submissionID, errMsg string) error {
	ctxStore, cancel := s.withTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.SaveFailure(ctxStore, submissionID, errMsg)
}

// publish delivers the terminal event, best effort. A lost notification
// is acceptable; clients fall back to polling the store.
func (s *Service) publish(ctx context.Context, event model.ResultEvent) {
	ctxPublish, cancel := s.withTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.results.PublishResult(ctxPublish, event); err != nil {
		logger.Warn(ctx, "publish result event failed",
			zap.String("submission_id", event.SubmissionID),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func (s *Service) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
