// Package notify carries ledger events to indexers over SQS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/types"
)

// SQSAPI is the subset of the SQS client used by this package.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSPublisher sends each event as a JSON message body. The event type and
// dataset id are duplicated into message attributes for SNS/SQS filter policies.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

// NewSQSPublisher creates a publisher for queueURL. logger may be nil.
func NewSQSPublisher(client SQSAPI, queueURL string, logger *zap.Logger) (*SQSPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("SQS client is required")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}, nil
}

// Publish sends one event.
func (p *SQSPublisher) Publish(ctx context.Context, event types.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		"event_type": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.Type)),
		},
	}
	if event.DatasetID != 0 {
		attrs["dataset_id"] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.FormatUint(event.DatasetID, 10)),
		}
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to send event to SQS: %w", err)
	}

	p.logger.Debug("published ledger event",
		zap.String("event_type", string(event.Type)),
		zap.Uint64("sequence", event.Sequence),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)

	return nil
}
