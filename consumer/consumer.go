// Package consumer buys or subscribes to datasets, fetches their content and
// follows ledger notifications.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/api"
	"github.com/helix-tools/ledger-go/config"
	"github.com/helix-tools/ledger-go/envelope"
	"github.com/helix-tools/ledger-go/notify"
	"github.com/helix-tools/ledger-go/producer"
	"github.com/helix-tools/ledger-go/types"
)

var (
	// ErrNoAccess is returned by DownloadDataset when the consumer has neither
	// access, a purchase nor a current subscription.
	ErrNoAccess = errors.New("no access to dataset")

	// ErrContentMismatch is returned when downloaded content does not hash to
	// the dataset's content reference.
	ErrContentMismatch = errors.New("content hash mismatch")

	// ErrNotificationsDisabled is returned by notification calls when no queue is configured.
	ErrNotificationsDisabled = errors.New("notifications are not configured")
)

// S3API is the subset of the S3 client used for downloads.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config configures a Consumer.
type Config struct {
	Client *api.Client
	S3     S3API
	Bucket string
	// Sealer decrypts content; it needs no key ID.
	Sealer *envelope.Sealer
	// Poller is optional. Without it notification calls fail with ErrNotificationsDisabled.
	Poller *notify.Poller
	Logger *zap.Logger
}

type Consumer struct {
	client *api.Client
	s3     S3API
	bucket string
	sealer *envelope.Sealer
	poller *notify.Poller
	logger *zap.Logger
}

// Download describes one fetched dataset.
type Download struct {
	DatasetID   uint64 `json:"dataset_id"`
	ContentHash string `json:"content_hash"`
	Path        string `json:"path"`
	SizeBytes   int    `json:"size_bytes"`
	Compressed  bool   `json:"compressed"`
	Encrypted   bool   `json:"encrypted"`
	// Via is how access was established: "access", "purchase" or "subscription".
	Via string `json:"via"`
}

func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("API client is required")
	}
	if cfg.Client.Identity() == "" {
		return nil, fmt.Errorf("client identity is required")
	}
	if cfg.S3 == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("content bucket is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Consumer{
		client: cfg.Client,
		s3:     cfg.S3,
		bucket: cfg.Bucket,
		sealer: cfg.Sealer,
		poller: cfg.Poller,
		logger: cfg.Logger,
	}, nil
}

// NewFromConfig builds a Consumer against AWS, validating credentials with STS.
// Notifications are enabled when cfg.QueueURL is set.
func NewFromConfig(ctx context.Context, cfg types.Config, logger *zap.Logger) (*Consumer, error) {
	if cfg.Region == "" {
		cfg.Region = api.DefaultRegion
	}

	awsCfg, err := config.NewAWSConfig(ctx, config.Config{
		Region:             cfg.Region,
		AWSAccessKeyID:     cfg.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	arn, err := config.CallerIdentity(ctx, sts.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	if cfg.Identity == "" {
		cfg.Identity = arn
	}

	client, err := api.NewClient(ctx, api.ClientConfig{
		BaseURL:  cfg.APIEndpoint,
		Identity: cfg.Identity,
		Region:   cfg.Region,
		Credentials: api.Credentials{
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: cfg.AWSSecretAccessKey,
		},
	})
	if err != nil {
		return nil, err
	}

	var poller *notify.Poller
	if cfg.QueueURL != "" {
		if poller, err = notify.NewPoller(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger); err != nil {
			return nil, err
		}
	}

	return NewConsumer(Config{
		Client: client,
		S3:     s3.NewFromConfig(awsCfg),
		Bucket: cfg.ContentBucket,
		Sealer: envelope.NewSealer(kms.NewFromConfig(awsCfg), ""),
		Poller: poller,
		Logger: logger,
	})
}

// Identity returns the identity this consumer acts as.
func (c *Consumer) Identity() string {
	return c.client.Identity()
}

func (c *Consumer) GetDataset(ctx context.Context, datasetID uint64) (types.DatasetDetails, error) {
	return c.client.GetDataset(ctx, datasetID)
}

// Purchase buys the dataset at its current listed price.
func (c *Consumer) Purchase(ctx context.Context, datasetID uint64) (types.PurchaseReceipt, error) {
	dataset, err := c.client.GetDataset(ctx, datasetID)
	if err != nil {
		return types.PurchaseReceipt{}, fmt.Errorf("failed to get dataset: %w", err)
	}

	return c.PurchaseWithPayment(ctx, datasetID, dataset.Price)
}

// PurchaseWithPayment buys the dataset attaching exactly payment. Overpayment
// is split like any other payment.
func (c *Consumer) PurchaseWithPayment(ctx context.Context, datasetID, payment uint64) (types.PurchaseReceipt, error) {
	receipt, err := c.client.PurchaseDataset(ctx, datasetID, payment)
	if err != nil {
		return types.PurchaseReceipt{}, fmt.Errorf("failed to purchase dataset %d: %w", datasetID, err)
	}

	c.logger.Info("purchased dataset",
		zap.Uint64("dataset_id", datasetID),
		zap.Uint64("amount", receipt.Amount),
		zap.Uint64("fee", receipt.Fee),
	)

	return receipt, nil
}

// Subscribe pays for months of access at the dataset's monthly subscription price.
func (c *Consumer) Subscribe(ctx context.Context, datasetID uint64, months uint32) (types.SubscribeResponse, error) {
	dataset, err := c.client.GetDataset(ctx, datasetID)
	if err != nil {
		return types.SubscribeResponse{}, fmt.Errorf("failed to get dataset: %w", err)
	}

	payment := dataset.SubscriptionPrice * uint64(months)
	resp, err := c.client.Subscribe(ctx, datasetID, months, payment)
	if err != nil {
		return types.SubscribeResponse{}, fmt.Errorf("failed to subscribe to dataset %d: %w", datasetID, err)
	}

	c.logger.Info("subscribed to dataset",
		zap.Uint64("dataset_id", datasetID),
		zap.Uint32("months", months),
		zap.Time("end_time", resp.Subscription.EndTime),
	)

	return resp, nil
}

func (c *Consumer) CancelSubscription(ctx context.Context, datasetID uint64) error {
	return c.client.CancelSubscription(ctx, datasetID)
}

// CheckSubscription reports this consumer's subscription state for the dataset.
func (c *Consumer) CheckSubscription(ctx context.Context, datasetID uint64) (types.CheckSubscriptionResponse, error) {
	return c.client.CheckSubscription(ctx, datasetID, c.Identity())
}

// ListPurchases returns the ids of datasets this consumer has bought.
func (c *Consumer) ListPurchases(ctx context.Context) ([]uint64, error) {
	return c.client.GetUserPurchases(ctx, c.Identity())
}

// Review rates a purchased dataset from 1 to 5.
func (c *Consumer) Review(ctx context.Context, datasetID uint64, rating uint8, comment string) error {
	return c.client.ReviewDataset(ctx, datasetID, rating, comment)
}

// authorize returns how this consumer may read the dataset, or ErrNoAccess.
func (c *Consumer) authorize(ctx context.Context, datasetID uint64) (string, error) {
	ok, err := c.client.HasAccess(ctx, datasetID, c.Identity())
	if err != nil {
		return "", fmt.Errorf("failed to check access: %w", err)
	}
	if ok {
		return "access", nil
	}

	purchases, err := c.ListPurchases(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list purchases: %w", err)
	}
	for _, id := range purchases {
		if id == datasetID {
			return "purchase", nil
		}
	}

	sub, err := c.CheckSubscription(ctx, datasetID)
	if err != nil {
		return "", fmt.Errorf("failed to check subscription: %w", err)
	}
	if sub.HasSubscription {
		return "subscription", nil
	}

	return "", ErrNoAccess
}

// DownloadDataset fetches the dataset's current content, decodes it and writes
// it to outputPath. The plaintext must hash to the dataset's content reference.
func (c *Consumer) DownloadDataset(ctx context.Context, datasetID uint64, outputPath string) (*Download, error) {
	dataset, err := c.client.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	via, err := c.authorize(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	key := producer.ContentKey(dataset.ContentHash)
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", c.bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	compressed, _ := strconv.ParseBool(out.Metadata[producer.MetadataCompressed])
	encrypted, _ := strconv.ParseBool(out.Metadata[producer.MetadataEncrypted])
	if encrypted && c.sealer == nil {
		return nil, fmt.Errorf("dataset %d is encrypted but no KMS client is configured", datasetID)
	}

	data, err := c.sealer.Unpack(ctx, body, envelope.Options{Compress: compressed, Encrypt: encrypted})
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}

	if got := producer.ContentHash(data); got != dataset.ContentHash {
		return nil, fmt.Errorf("%w: dataset %d expects %s, got %s", ErrContentMismatch, datasetID, dataset.ContentHash, got)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	c.logger.Info("downloaded dataset",
		zap.Uint64("dataset_id", datasetID),
		zap.String("path", outputPath),
		zap.Int("stored_bytes", len(body)),
		zap.Int("bytes", len(data)),
		zap.String("via", via),
	)

	return &Download{
		DatasetID:   datasetID,
		ContentHash: dataset.ContentHash,
		Path:        outputPath,
		SizeBytes:   len(data),
		Compressed:  compressed,
		Encrypted:   encrypted,
		Via:         via,
	}, nil
}

// PollNotifications receives one batch of ledger events.
//
// Example:
//
//	notifications, err := c.PollNotifications(ctx, notify.PollOptions{
//		EventTypes: []types.EventType{types.EventDatasetVersionAdded},
//	})
func (c *Consumer) PollNotifications(ctx context.Context, opts notify.PollOptions) ([]notify.Notification, error) {
	if c.poller == nil {
		return nil, ErrNotificationsDisabled
	}

	return c.poller.Poll(ctx, opts)
}

// DeleteNotification acknowledges a notification received without auto-acknowledge.
func (c *Consumer) DeleteNotification(ctx context.Context, receiptHandle string) error {
	if c.poller == nil {
		return ErrNotificationsDisabled
	}

	return c.poller.Delete(ctx, receiptHandle)
}
