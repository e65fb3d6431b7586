package service

import (
	"context"
	"encoding/json"

	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/model"
	"judgehub/internal/notify"
	appErr "judgehub/pkg/errors"
	"judgehub/pkg/utils/logger"

	"go.uber.org/zap"
)

// ResultConsumer receives terminal result events from the dispatch
// service and forwards each to the owner's notification channel group.
type ResultConsumer struct {
	hub *notify.Hub
}

// NewResultConsumer creates a result consumer bound to the hub.
func NewResultConsumer(hub *notify.Hub) (*ResultConsumer, error) {
	if hub == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("notification hub is required")
	}
	return &ResultConsumer{hub: hub}, nil
}

// HandleResultMessage decodes one result event and publishes it to the
// user's subscriptions. A user with no open connection simply misses
// the event; delivery is at most once and the status endpoint remains
// the source of truth.
func (c *ResultConsumer) HandleResultMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return mq.Unretryable(appErr.New(appErr.InvalidParams).WithMessage("message is nil"))
	}
	var event model.ResultEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return mq.Unretryable(appErr.Wrapf(err, appErr.InvalidParams, "decode result event failed"))
	}
	if event.UserID == "" || event.SubmissionID == "" {
		return mq.Unretryable(appErr.New(appErr.InvalidParams).WithMessage("result event missing required fields"))
	}

	delivered := c.hub.Publish(event.UserID, event)
	if delivered == 0 {
		logger.Debug(ctx, "result event dropped, no active subscriber",
			zap.String("submission_id", event.SubmissionID),
			zap.String("user_id", event.UserID),
			zap.String("status", string(event.Status)))
		return nil
	}

	logger.Info(ctx, "result event delivered",
		zap.String("submission_id", event.SubmissionID),
		zap.String("user_id", event.UserID),
		zap.String("status", string(event.Status)),
		zap.Int("subscribers", delivered))
	return nil
}
