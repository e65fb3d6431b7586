package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/model"
	appErr "judgehub/pkg/errors"
)

// ResultPublisher pushes terminal result events toward the gateway for
// per-user delivery.
type ResultPublisher interface {
	PublishResult(ctx context.Context, event model.ResultEvent) error
}

// MQResultPublisher publishes result events to a message queue topic.
type MQResultPublisher struct {
	queue mq.Producer
	topic string
}

// NewMQResultPublisher creates a new MQ result publisher.
func NewMQResultPublisher(queue mq.Producer, topic string) *MQResultPublisher {
	return &MQResultPublisher{queue: queue, topic: topic}
}

// PublishResult publishes one terminal result event.
func (p *MQResultPublisher) PublishResult(ctx context.Context, event model.ResultEvent) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("result publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("result topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if event.UserID == "" {
		return appErr.ValidationError("user_id", "required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal result event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.SubmissionID
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish result event failed")
	}
	return nil
}
