package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/gateway/service"
	"judgehub/internal/notify"
)

func resultMessage(t *testing.T, event model.ResultEvent) *mq.Message {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event failed: %v", err)
	}
	return mq.NewMessage(body)
}

func TestHandleResultMessageDeliversToSubscriber(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	consumer, err := service.NewResultConsumer(hub)
	if err != nil {
		t.Fatalf("new result consumer failed: %v", err)
	}

	sub := hub.Subscribe("user-1")
	defer sub.Close()

	event := model.ResultEvent{
		UserID:       "user-1",
		SubmissionID: "sub-1",
		Status:       model.StatusAccepted,
		Stdout:       "hello\n",
		Time:         0.02,
	}
	if err := consumer.HandleResultMessage(context.Background(), resultMessage(t, event)); err != nil {
		t.Fatalf("handle result message failed: %v", err)
	}

	got := <-sub.C
	if got.SubmissionID != "sub-1" || got.Status != model.StatusAccepted || got.Stdout != "hello\n" {
		t.Fatalf("unexpected delivered event: %+v", got)
	}
}

func TestHandleResultMessageDropsWithoutSubscriber(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	consumer, err := service.NewResultConsumer(hub)
	if err != nil {
		t.Fatalf("new result consumer failed: %v", err)
	}

	event := model.ResultEvent{
		UserID:       "offline-user",
		SubmissionID: "sub-2",
		Status:       model.StatusFailed,
		Error:        "node unreachable",
	}
	// A missed notification is not an error; the queue must not redeliver.
	if err := consumer.HandleResultMessage(context.Background(), resultMessage(t, event)); err != nil {
		t.Fatalf("dropped event must not fail the handler: %v", err)
	}
}

func TestHandleResultMessageRejectsBadPayload(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	consumer, err := service.NewResultConsumer(hub)
	if err != nil {
		t.Fatalf("new result consumer failed: %v", err)
	}

	err = consumer.HandleResultMessage(context.Background(), mq.NewMessage([]byte("not json")))
	if err == nil {
		t.Fatal("expected error for undecodable payload")
	}
	if !mq.IsUnretryable(err) {
		t.Fatalf("undecodable payload must not be redelivered, got %v", err)
	}

	err = consumer.HandleResultMessage(context.Background(), resultMessage(t, model.ResultEvent{}))
	if err == nil {
		t.Fatal("expected error for missing required fields")
	}
	if !mq.IsUnretryable(err) {
		t.Fatalf("malformed event must not be redelivered, got %v", err)
	}
}
