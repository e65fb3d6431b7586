package notify_test

import (
	"testing"

	"judgehub/internal/dispatch/model"
	"judgehub/internal/notify"
)

func TestPublishReachesOnlyOwnerSubscriptions(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	alice := hub.Subscribe("alice")
	defer alice.Close()
	bob := hub.Subscribe("bob")
	defer bob.Close()

	event := model.ResultEvent{
		UserID:       "alice",
		SubmissionID: "sub-1",
		Status:       model.StatusAccepted,
	}
	if delivered := hub.Publish("alice", event); delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}

	got := <-alice.C
	if got.SubmissionID != "sub-1" {
		t.Fatalf("unexpected event: %+v", got)
	}

	select {
	case leaked := <-bob.C:
		t.Fatalf("event leaked to another user: %+v", leaked)
	default:
	}
}

func TestPublishToUserWithoutSubscribersDrops(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	if delivered := hub.Publish("ghost", model.ResultEvent{UserID: "ghost", SubmissionID: "sub-2"}); delivered != 0 {
		t.Fatalf("expected drop, got %d deliveries", delivered)
	}
}

func TestPublishFansOutToAllConnections(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	first := hub.Subscribe("alice")
	defer first.Close()
	second := hub.Subscribe("alice")
	defer second.Close()

	if delivered := hub.Publish("alice", model.ResultEvent{UserID: "alice", SubmissionID: "sub-3"}); delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
	if (<-first.C).SubmissionID != "sub-3" {
		t.Fatal("first connection missed the event")
	}
	if (<-second.C).SubmissionID != "sub-3" {
		t.Fatal("second connection missed the event")
	}
}

func TestClosedSubscriptionStopsReceiving(t *testing.T) {
	t.Parallel()
	hub := notify.NewHub()
	sub := hub.Subscribe("alice")
	sub.Close()

	if delivered := hub.Publish("alice", model.ResultEvent{UserID: "alice", SubmissionID: "sub-4"}); delivered != 0 {
		t.Fatalf("expected 0 deliveries after close, got %d", delivered)
	}
	if hub.Subscribers("alice") != 0 {
		t.Fatal("closed subscription still registered")
	}

	// Close must be safe to call twice.
	sub.Close()
}

func TestPublishSkipsFullBuffers(t *testing.T) {
	t.Parallel()
	hub := notify.NewHubWithBuffer(1)
	sub := hub.Subscribe("alice")
	defer sub.Close()

	if delivered := hub.Publish("alice", model.ResultEvent{SubmissionID: "sub-5"}); delivered != 1 {
		t.Fatalf("first publish should deliver, got %d", delivered)
	}
	if delivered := hub.Publish("alice", model.ResultEvent{SubmissionID: "sub-6"}); delivered != 0 {
		t.Fatalf("publish to full buffer must drop, got %d", delivered)
	}
}
