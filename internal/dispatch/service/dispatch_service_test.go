package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/judgeclient"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/dispatch/repository"
	"judgehub/internal/dispatch/selector"
	"judgehub/internal/dispatch/service"
)

type fakeStore struct {
	markProcessingErr error
	saveResultErr     error

	markedProcessing []string
	savedResults     []savedResult
	savedFailures    []savedFailure
	calls            []string
}

type savedResult struct {
	submissionID string
	status       model.Status
	stdout       string
	stderr       string
	time         float64
}

type savedFailure struct {
	submissionID string
	errMsg       string
}

func (f *fakeStore) Create(ctx context.Context, submission *model.Submission) error { return nil }

func (f *fakeStore) GetByID(ctx context.Context, submissionID string) (*model.Submission, error) {
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeStore) GetStatus(ctx context.Context, submissionID string) (repository.StatusSnapshot, error) {
	return repository.StatusSnapshot{}, repository.ErrSubmissionNotFound
}

func (f *fakeStore) MarkProcessing(ctx context.Context, submissionID string) error {
	f.calls = append(f.calls, "mark_processing")
	if f.markProcessingErr != nil {
		return f.markProcessingErr
	}
	f.markedProcessing = append(f.markedProcessing, submissionID)
	return nil
}

func (f *fakeStore) SaveResult(ctx context.Context, submissionID string, status model.Status, stdout, stderr string, executionTime float64) error {
	f.calls = append(f.calls, "save_result")
	if f.saveResultErr != nil {
		return f.saveResultErr
	}
	f.savedResults = append(f.savedResults, savedResult{submissionID, status, stdout, stderr, executionTime})
	return nil
}

func (f *fakeStore) SaveFailure(ctx context.Context, submissionID, errMsg string) error {
	f.calls = append(f.calls, "save_failure")
	f.savedFailures = append(f.savedFailures, savedFailure{submissionID, errMsg})
	return nil
}

type fakeClient struct {
	result model.ExecutionResult
	err    error

	requests []judgeclient.Request
	nodes    []selector.Node
}

func (f *fakeClient) Execute(ctx context.Context, node selector.Node, req judgeclient.Request) (model.ExecutionResult, error) {
	f.requests = append(f.requests, req)
	f.nodes = append(f.nodes, node)
	if f.err != nil {
		return model.ExecutionResult{}, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	events []model.ResultEvent
	err    error
}

func (f *fakePublisher) PublishResult(ctx context.Context, event model.ResultEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func newTestService(t *testing.T, store *fakeStore, client *fakeClient, pub *fakePublisher) *service.Service {
	t.Helper()
	rr, err := selector.NewRoundRobin([]string{"http://node-a:2358"})
	if err != nil {
		t.Fatalf("new round robin failed: %v", err)
	}
	svc, err := service.NewService(service.Config{
		Store:    store,
		Selector: rr,
		Client:   client,
		Results:  pub,
	})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	return svc
}

func stdoutResult(statusID int, stdout string, time float64) model.ExecutionResult {
	return model.ExecutionResult{StatusID: statusID, Stdout: stdout, Time: time}
}

func TestProcessJobAcceptedSubmission(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{result: stdoutResult(3, "hello\n", 0.02)}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	job := model.DispatchJob{
		SubmissionID: "sub-1",
		UserID:       "user-1",
		SourceCode:   "print('hello')",
		LanguageID:   71,
		Stdin:        "1 2\n",
	}
	event, err := svc.ProcessJob(context.Background(), job)
	if err != nil {
		t.Fatalf("process job failed: %v", err)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected one execution call, got %d", len(client.requests))
	}
	if client.requests[0].SourceCode != "print('hello')" || client.requests[0].LanguageID != 71 {
		t.Fatalf("unexpected execution request: %+v", client.requests[0])
	}
	if client.requests[0].Stdin != "1 2\n" {
		t.Fatalf("stdin not forwarded to node: %q", client.requests[0].Stdin)
	}

	if len(store.savedResults) != 1 {
		t.Fatalf("expected one saved result, got %d", len(store.savedResults))
	}
	saved := store.savedResults[0]
	if saved.status != model.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", saved.status)
	}
	if saved.stdout != "hello\n" {
		t.Fatalf("unexpected stdout: %q", saved.stdout)
	}

	if event.Status != model.StatusAccepted || event.UserID != "user-1" || event.SubmissionID != "sub-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(pub.events) != 1 || pub.events[0].Stdout != "hello\n" {
		t.Fatalf("unexpected published events: %+v", pub.events)
	}
}

func TestProcessJobWrongAnswerOnNonAcceptedCode(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{result: stdoutResult(6, "", 0.1)}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	event, err := svc.ProcessJob(context.Background(), model.DispatchJob{
		SubmissionID: "sub-2",
		UserID:       "user-1",
		SourceCode:   "int main() { return 1 }",
		LanguageID:   54,
	})
	if err != nil {
		t.Fatalf("process job failed: %v", err)
	}
	if event.Status != model.StatusWrongAnswer {
		t.Fatalf("expected WRONG_ANSWER, got %s", event.Status)
	}
	if store.savedResults[0].status != model.StatusWrongAnswer {
		t.Fatalf("expected WRONG_ANSWER persisted, got %s", store.savedResults[0].status)
	}
}

func TestProcessJobRemoteFailure(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{err: errors.New("connect ECONNREFUSED")}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	event, err := svc.ProcessJob(context.Background(), model.DispatchJob{
		SubmissionID: "sub-3",
		UserID:       "user-2",
		SourceCode:   "x",
		LanguageID:   71,
	})
	if err == nil {
		t.Fatal("expected remote error to be reported")
	}

	if len(store.savedFailures) != 1 {
		t.Fatalf("expected one saved failure, got %d", len(store.savedFailures))
	}
	if store.savedFailures[0].errMsg != "connect ECONNREFUSED" {
		t.Fatalf("unexpected failure message: %q", store.savedFailures[0].errMsg)
	}

	if event.Status != model.StatusFailed {
		t.Fatalf("expected FAILED event, got %s", event.Status)
	}
	if event.Error != "connect ECONNREFUSED" {
		t.Fatalf("expected error text in event, got %q", event.Error)
	}
	if len(pub.events) != 1 || pub.events[0].Status != model.StatusFailed {
		t.Fatalf("unexpected published events: %+v", pub.events)
	}
}

func TestProcessJobMarksProcessingBeforeExecuting(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{result: stdoutResult(3, "", 0)}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	if _, err := svc.ProcessJob(context.Background(), model.DispatchJob{
		SubmissionID: "sub-4",
		UserID:       "user-1",
		SourceCode:   "x",
		LanguageID:   71,
	}); err != nil {
		t.Fatalf("process job failed: %v", err)
	}

	if len(store.calls) != 2 || store.calls[0] != "mark_processing" || store.calls[1] != "save_result" {
		t.Fatalf("unexpected call order: %v", store.calls)
	}
}

func TestProcessJobSkipsUnclaimableSubmission(t *testing.T) {
	t.Parallel()
	store := &fakeStore{markProcessingErr: repository.ErrInvalidTransition}
	client := &fakeClient{result: stdoutResult(3, "", 0)}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	event, err := svc.ProcessJob(context.Background(), model.DispatchJob{
		SubmissionID: "sub-5",
		UserID:       "user-1",
		SourceCode:   "x",
		LanguageID:   71,
	})
	if err != nil {
		t.Fatalf("expected redelivery to be skipped silently: %v", err)
	}
	if event.SubmissionID != "" {
		t.Fatalf("expected empty event for skipped job, got %+v", event)
	}
	if len(client.requests) != 0 {
		t.Fatal("execution must not run for an unclaimable submission")
	}
}

func TestHandleJobMessageSwallowsJobFailures(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{err: errors.New("node down")}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	body, err := json.Marshal(model.DispatchJob{
		SubmissionID: "sub-6",
		UserID:       "user-1",
		SourceCode:   "x",
		LanguageID:   71,
	})
	if err != nil {
		t.Fatalf("marshal job failed: %v", err)
	}

	if err := svc.HandleJobMessage(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatalf("job failures must not trigger redelivery, got %v", err)
	}
	if len(store.savedFailures) != 1 {
		t.Fatalf("expected failure to be recorded, got %d", len(store.savedFailures))
	}
}

func TestHandleJobMessageRejectsBadPayload(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	client := &fakeClient{}
	pub := &fakePublisher{}
	svc := newTestService(t, store, client, pub)

	err := svc.HandleJobMessage(context.Background(), mq.NewMessage([]byte("not json")))
	if err == nil {
		t.Fatal("expected error for undecodable payload")
	}
	if !mq.IsUnretryable(err) {
		t.Fatalf("undecodable payload must not be redelivered, got %v", err)
	}

	err = svc.HandleJobMessage(context.Background(), mq.NewMessage([]byte(`{"submission_id":""}`)))
	if err == nil {
		t.Fatal("expected error for missing required fields")
	}
	if !mq.IsUnretryable(err) {
		t.Fatalf("malformed job must not be redelivered, got %v", err)
	}
}
