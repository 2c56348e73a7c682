package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/types"
)

// Notification is one ledger event received from the queue.
type Notification struct {
	MessageID     string      `json:"message_id"`
	ReceiptHandle string      `json:"receipt_handle"`
	Event         types.Event `json:"event"`
	RawMessage    string      `json:"raw_message"`
}

// PollOptions contains options for polling notifications from SQS.
type PollOptions struct {
	MaxMessages     int32 // Maximum number of messages to retrieve (1-10, default: 10)
	WaitTimeSeconds int32 // Long polling wait time (1-20 seconds, default: 20)
	// AutoAcknowledge deletes returned messages after receiving (default: true).
	AutoAcknowledge *bool
	// EventTypes and DatasetIDs, when set, drop non-matching notifications.
	// Dropped messages are left on the queue.
	EventTypes []types.EventType
	DatasetIDs []uint64
}

// Poller reads ledger events from an SQS queue.
type Poller struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

// NewPoller creates a poller for queueURL. logger may be nil.
func NewPoller(client SQSAPI, queueURL string, logger *zap.Logger) (*Poller, error) {
	if client == nil {
		return nil, fmt.Errorf("SQS client is required")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Poller{client: client, queueURL: queueURL, logger: logger}, nil
}

// Poll receives one batch of notifications. Messages that cannot be parsed
// are logged and skipped.
func (p *Poller) Poll(ctx context.Context, opts PollOptions) ([]Notification, error) {
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}
	if opts.WaitTimeSeconds <= 0 || opts.WaitTimeSeconds > 20 {
		opts.WaitTimeSeconds = 20
	}
	autoAcknowledge := true
	if opts.AutoAcknowledge != nil {
		autoAcknowledge = *opts.AutoAcknowledge
	}

	receiveOutput, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(p.queueURL),
		MaxNumberOfMessages:   opts.MaxMessages,
		WaitTimeSeconds:       opts.WaitTimeSeconds,
		VisibilityTimeout:     300,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to poll SQS queue: %w", err)
	}

	var notifications []Notification
	for _, message := range receiveOutput.Messages {
		body := aws.ToString(message.Body)

		event, err := ParseEvent(body)
		if err != nil {
			p.logger.Warn("skipping unparseable notification",
				zap.String("message_id", aws.ToString(message.MessageId)),
				zap.Error(err),
			)
			continue
		}

		if len(opts.EventTypes) > 0 && !slices.Contains(opts.EventTypes, event.Type) {
			continue
		}
		if len(opts.DatasetIDs) > 0 && !slices.Contains(opts.DatasetIDs, event.DatasetID) {
			continue
		}

		notification := Notification{
			MessageID:     aws.ToString(message.MessageId),
			ReceiptHandle: aws.ToString(message.ReceiptHandle),
			Event:         event,
			RawMessage:    body,
		}
		notifications = append(notifications, notification)

		if autoAcknowledge {
			if err := p.Delete(ctx, notification.ReceiptHandle); err != nil {
				p.logger.Warn("failed to auto-acknowledge notification",
					zap.String("message_id", notification.MessageID),
					zap.Error(err),
				)
			}
		}
	}

	return notifications, nil
}

// Delete acknowledges a notification after processing.
func (p *Poller) Delete(ctx context.Context, receiptHandle string) error {
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}

	return nil
}

// ParseEvent decodes a message body. Bodies delivered through an SNS topic
// subscription carry the event JSON in the envelope's Message field.
func ParseEvent(body string) (types.Event, error) {
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return types.Event{}, fmt.Errorf("failed to parse message body: %w", err)
	}
	if envelope.Type == "Notification" && envelope.Message != "" {
		body = envelope.Message
	}

	var event types.Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return types.Event{}, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if event.Type == "" {
		return types.Event{}, fmt.Errorf("event payload has no event_type")
	}

	return event, nil
}
