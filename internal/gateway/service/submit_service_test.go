package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/dispatch/repository"
	"judgehub/internal/gateway/service"
	appErr "judgehub/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

type fakeSubmissionStore struct {
	created   []*model.Submission
	createErr error

	snapshot    repository.StatusSnapshot
	snapshotErr error
}

func (f *fakeSubmissionStore) Create(ctx context.Context, submission *model.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, submission)
	return nil
}

func (f *fakeSubmissionStore) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeSubmissionStore) GetStatus(ctx context.Context, submissionID string) (repository.StatusSnapshot, error) {
	if f.snapshotErr != nil {
		return repository.StatusSnapshot{}, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeSubmissionStore) MarkProcessing(ctx context.Context, submissionID string) error {
	return nil
}

func (f *fakeSubmissionStore) SaveResult(ctx context.Context, submissionID string, status model.Status, stdout, stderr string, executionTime float64) error {
	return nil
}

func (f *fakeSubmissionStore) SaveFailure(ctx context.Context, submissionID, errMsg string) error {
	return nil
}

type publishedMessage struct {
	topic   string
	message *mq.Message
}

type fakeProducer struct {
	published []publishedMessage
	err       error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{topic: topic, message: message})
	return nil
}

func newSubmitService(t *testing.T, store *fakeSubmissionStore, producer *fakeProducer, cacheClient cache.Cache, rate service.RateLimitConfig) *service.SubmitService {
	t.Helper()
	svc, err := service.NewSubmitService(service.Config{
		Submissions: store,
		Queue:       producer,
		Cache:       cacheClient,
		JobTopic:    "submissions.jobs",
		RateLimit:   rate,
	})
	if err != nil {
		t.Fatalf("new submit service failed: %v", err)
	}
	return svc
}

func TestSubmitQueuesPendingSubmission(t *testing.T) {
	t.Parallel()
	store := &fakeSubmissionStore{}
	producer := &fakeProducer{}
	svc := newSubmitService(t, store, producer, nil, service.RateLimitConfig{})

	out, err := svc.Submit(context.Background(), service.SubmitInput{
		UserID:     "user-1",
		SourceCode: "print('hello')",
		LanguageID: 71,
		Stdin:      "",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.SubmissionID == "" {
		t.Fatal("expected a submission id")
	}
	if out.Status != model.StatusPending {
		t.Fatalf("expected PENDING, got %s", out.Status)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected one created submission, got %d", len(store.created))
	}
	if store.created[0].Status != model.StatusPending {
		t.Fatalf("persisted status must be PENDING, got %s", store.created[0].Status)
	}

	if len(producer.published) != 1 {
		t.Fatalf("expected one published job, got %d", len(producer.published))
	}
	if producer.published[0].topic != "submissions.jobs" {
		t.Fatalf("unexpected topic: %s", producer.published[0].topic)
	}
	var job model.DispatchJob
	if err := json.Unmarshal(producer.published[0].message.Body, &job); err != nil {
		t.Fatalf("decode published job failed: %v", err)
	}
	if job.SubmissionID != out.SubmissionID || job.UserID != "user-1" || job.LanguageID != 71 {
		t.Fatalf("unexpected job payload: %+v", job)
	}
}

func TestSubmitValidatesInput(t *testing.T) {
	t.Parallel()
	store := &fakeSubmissionStore{}
	producer := &fakeProducer{}
	svc := newSubmitService(t, store, producer, nil, service.RateLimitConfig{})

	cases := []service.SubmitInput{
		{SourceCode: "x", LanguageID: 71},
		{UserID: "user-1", LanguageID: 71},
		{UserID: "user-1", SourceCode: "x"},
		{UserID: "user-1", SourceCode: "   ", LanguageID: 71},
	}
	for i, input := range cases {
		if _, err := svc.Submit(context.Background(), input); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if len(producer.published) != 0 {
		t.Fatal("invalid submissions must not be queued")
	}
}

func TestSubmitRejectsOversizedCode(t *testing.T) {
	t.Parallel()
	store := &fakeSubmissionStore{}
	producer := &fakeProducer{}
	svc, err := service.NewSubmitService(service.Config{
		Submissions:  store,
		Queue:        producer,
		JobTopic:     "submissions.jobs",
		MaxCodeBytes: 8,
	})
	if err != nil {
		t.Fatalf("new submit service failed: %v", err)
	}

	_, err = svc.Submit(context.Background(), service.SubmitInput{
		UserID:     "user-1",
		SourceCode: "this source is longer than eight bytes",
		LanguageID: 71,
	})
	if !appErr.Is(err, appErr.CodeTooLarge) {
		t.Fatalf("expected CodeTooLarge, got %v", err)
	}
}

func TestSubmitRateLimitsPerUser(t *testing.T) {
	t.Parallel()
	server := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache(server.Addr())
	if err != nil {
		t.Fatalf("new redis cache failed: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })

	store := &fakeSubmissionStore{}
	producer := &fakeProducer{}
	svc := newSubmitService(t, store, producer, redisCache, service.RateLimitConfig{
		UserMax: 2,
		Window:  time.Minute,
	})

	input := service.SubmitInput{UserID: "user-1", SourceCode: "x", LanguageID: 71}
	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(context.Background(), input); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	_, err = svc.Submit(context.Background(), input)
	if !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
}

func TestGetStatusMapsNotFound(t *testing.T) {
	t.Parallel()
	store := &fakeSubmissionStore{snapshotErr: repository.ErrSubmissionNotFound}
	producer := &fakeProducer{}
	svc := newSubmitService(t, store, producer, nil, service.RateLimitConfig{})

	_, err := svc.GetStatus(context.Background(), "missing")
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
}

func TestGetStatusReturnsSnapshot(t *testing.T) {
	t.Parallel()
	store := &fakeSubmissionStore{snapshot: repository.StatusSnapshot{
		SubmissionID: "sub-1",
		Status:       model.StatusAccepted,
		Stdout:       "hello\n",
	}}
	producer := &fakeProducer{}
	svc := newSubmitService(t, store, producer, nil, service.RateLimitConfig{})

	snapshot, err := svc.GetStatus(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if snapshot.Status != model.StatusAccepted || snapshot.Stdout != "hello\n" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}
