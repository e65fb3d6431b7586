package mq_test

import (
	"errors"
	"fmt"
	"testing"

	"judgehub/internal/common/mq"
)

func TestUnretryableMarksError(t *testing.T) {
	t.Parallel()
	base := errors.New("bad payload")
	marked := mq.Unretryable(base)

	if !mq.IsUnretryable(marked) {
		t.Fatal("expected marked error to be unretryable")
	}
	if marked.Error() != "bad payload" {
		t.Fatalf("unexpected error text: %q", marked.Error())
	}
	if !errors.Is(marked, base) {
		t.Fatal("expected marked error to unwrap to the original")
	}
}

func TestUnretryableSurvivesWrapping(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("handler failed: %w", mq.Unretryable(errors.New("bad payload")))
	if !mq.IsUnretryable(wrapped) {
		t.Fatal("expected wrapped error to stay unretryable")
	}
}

func TestIsUnretryableRejectsPlainErrors(t *testing.T) {
	t.Parallel()
	if mq.IsUnretryable(errors.New("transient")) {
		t.Fatal("plain errors must stay retryable")
	}
	if mq.IsUnretryable(nil) {
		t.Fatal("nil must not be unretryable")
	}
}

func TestUnretryableNilPassthrough(t *testing.T) {
	t.Parallel()
	if mq.Unretryable(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}
