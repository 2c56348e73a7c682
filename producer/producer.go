// Package producer uploads dataset content and lists it on the ledger.
package producer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/api"
	"github.com/helix-tools/ledger-go/config"
	"github.com/helix-tools/ledger-go/envelope"
	"github.com/helix-tools/ledger-go/types"
)

// Object metadata written with every content upload. Consumers read it back to
// decide how to decode the object.
const (
	MetadataCompressed = "ledger-compressed"
	MetadataEncrypted  = "ledger-encrypted"
	MetadataDataType   = "ledger-data-type"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config configures a Producer.
type Config struct {
	// Client lists datasets; its identity becomes the dataset owner.
	Client *api.Client
	S3     S3API
	Bucket string
	// Sealer encrypts content when it carries a KMS key.
	Sealer *envelope.Sealer
	Logger *zap.Logger
}

// Producer handles uploading content and listing datasets.
type Producer struct {
	client *api.Client
	s3     S3API
	bucket string
	sealer *envelope.Sealer
	logger *zap.Logger
}

// UploadOptions contains options for uploading dataset content.
//
// Use NewUploadOptions for secure defaults:
//
//	opts := producer.NewUploadOptions("hourly weather observations", 1000)
//	upload, err := p.UploadDataset(ctx, "/path/to/file", opts)
type UploadOptions struct {
	Description string
	Price       uint64
	// DataType is detected from the content when empty.
	DataType         string
	Encrypt          bool
	Compress         bool
	CompressionLevel int
}

// NewUploadOptions creates UploadOptions with encryption and compression enabled.
func NewUploadOptions(description string, price uint64) UploadOptions {
	return UploadOptions{
		Description:      description,
		Price:            price,
		Encrypt:          true,
		Compress:         true,
		CompressionLevel: envelope.DefaultCompressionLevel,
	}
}

// Upload describes one stored content object and the ledger record it backs.
type Upload struct {
	DatasetID uint64 `json:"dataset_id"`
	// Version is set by UploadVersion.
	Version     int    `json:"version,omitempty"`
	ContentHash string `json:"content_hash"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	// SizeBytes is the plaintext size, StoredBytes the encoded object size.
	SizeBytes   uint64     `json:"size_bytes"`
	StoredBytes int        `json:"stored_bytes"`
	Compressed  bool       `json:"compressed"`
	Encrypted   bool       `json:"encrypted"`
	Inspection  Inspection `json:"inspection"`
}

// NewProducer creates a Producer from explicit collaborators.
func NewProducer(cfg Config) (*Producer, error) {
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

	return &Producer{
		client: cfg.Client,
		s3:     cfg.S3,
		bucket: cfg.Bucket,
		sealer: cfg.Sealer,
		logger: cfg.Logger,
	}, nil
}

// NewFromConfig builds a Producer against AWS. Credentials are verified with
// STS; without an explicit identity the caller ARN is used.
func NewFromConfig(ctx context.Context, cfg types.Config, logger *zap.Logger) (*Producer, error) {
	if cfg.Region == "" {
		cfg.Region = api.DefaultRegion
	}

	awsCfg, identity, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(ctx, api.ClientConfig{
		BaseURL:  cfg.APIEndpoint,
		Identity: identity,
		Region:   cfg.Region,
		Credentials: api.Credentials{
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: cfg.AWSSecretAccessKey,
		},
	})
	if err != nil {
		return nil, err
	}

	return NewProducer(Config{
		Client: client,
		S3:     s3.NewFromConfig(awsCfg),
		Bucket: cfg.ContentBucket,
		Sealer: envelope.NewSealer(kms.NewFromConfig(awsCfg), cfg.KMSKeyID),
		Logger: logger,
	})
}

// loadAWS loads the AWS config and resolves the caller identity.
func loadAWS(ctx context.Context, cfg types.Config) (aws.Config, string, error) {
	awsCfg, err := config.NewAWSConfig(ctx, config.Config{
		Region:             cfg.Region,
		AWSAccessKeyID:     cfg.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return aws.Config{}, "", err
	}

	arn, err := config.CallerIdentity(ctx, sts.NewFromConfig(awsCfg))
	if err != nil {
		return aws.Config{}, "", err
	}

	identity := cfg.Identity
	if identity == "" {
		identity = arn
	}

	return awsCfg, identity, nil
}

// Identity returns the owner identity datasets are listed under.
func (p *Producer) Identity() string {
	return p.client.Identity()
}

// ContentHash returns the content reference of data: the hex SHA-256 of the plaintext.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// ContentKey returns the object key content with the given hash is stored under.
func ContentKey(contentHash string) string {
	return "content/" + contentHash
}

// UploadDataset stores the file content and lists a new dataset for it.
func (p *Producer) UploadDataset(ctx context.Context, filePath string, opts UploadOptions) (*Upload, error) {
	upload, err := p.store(ctx, filePath, opts)
	if err != nil {
		return nil, err
	}

	id, err := p.client.ListDataset(ctx, types.ListDatasetRequest{
		ContentHash: upload.ContentHash,
		Price:       opts.Price,
		Description: opts.Description,
		SizeBytes:   upload.SizeBytes,
		DataType:    upload.Inspection.DataType,
	})
	if err != nil {
		return nil, fmt.Errorf("content uploaded to s3://%s/%s but listing failed: %w", upload.Bucket, upload.Key, err)
	}
	upload.DatasetID = id

	p.logger.Info("listed dataset",
		zap.Uint64("dataset_id", id),
		zap.String("content_hash", upload.ContentHash),
		zap.Uint64("price", opts.Price),
	)

	return upload, nil
}

// BatchItem is one file of a batch upload.
type BatchItem struct {
	FilePath string
	Options  UploadOptions
}

// UploadBatch stores every file, then lists all datasets in one atomic ledger call.
func (p *Producer) UploadBatch(ctx context.Context, items []BatchItem) ([]*Upload, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch is empty")
	}

	uploads := make([]*Upload, 0, len(items))
	var req types.BatchListRequest
	for _, item := range items {
		upload, err := p.store(ctx, item.FilePath, item.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", item.FilePath, err)
		}
		uploads = append(uploads, upload)

		req.ContentHashes = append(req.ContentHashes, upload.ContentHash)
		req.Prices = append(req.Prices, item.Options.Price)
		req.Descriptions = append(req.Descriptions, item.Options.Description)
		req.Sizes = append(req.Sizes, upload.SizeBytes)
		req.DataTypes = append(req.DataTypes, upload.Inspection.DataType)
	}

	ids, err := p.client.BatchListDatasets(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("content uploaded but batch listing failed: %w", err)
	}
	if len(ids) != len(uploads) {
		return nil, fmt.Errorf("batch listing returned %d ids for %d items", len(ids), len(uploads))
	}
	for i, id := range ids {
		uploads[i].DatasetID = id
	}

	p.logger.Info("listed dataset batch", zap.Uint64s("dataset_ids", ids))

	return uploads, nil
}

// VersionOptions contains options for publishing a new dataset version.
type VersionOptions struct {
	UploadOptions
	ChangeLog string
}

// UploadVersion stores new content for an existing dataset and appends it as a version.
func (p *Producer) UploadVersion(ctx context.Context, datasetID uint64, filePath string, opts VersionOptions) (*Upload, error) {
	upload, err := p.store(ctx, filePath, opts.UploadOptions)
	if err != nil {
		return nil, err
	}

	version, err := p.client.AddDatasetVersion(ctx, datasetID, types.AddVersionRequest{
		ContentHash: upload.ContentHash,
		Description: opts.Description,
		ChangeLog:   opts.ChangeLog,
	})
	if err != nil {
		return nil, fmt.Errorf("content uploaded to s3://%s/%s but versioning failed: %w", upload.Bucket, upload.Key, err)
	}
	upload.DatasetID = datasetID
	upload.Version = version

	p.logger.Info("added dataset version",
		zap.Uint64("dataset_id", datasetID),
		zap.Int("version", version),
		zap.String("content_hash", upload.ContentHash),
	)

	return upload, nil
}

// store reads, encodes and uploads one file. Compression runs before encryption.
func (p *Producer) store(ctx context.Context, filePath string, opts UploadOptions) (*Upload, error) {
	if opts.CompressionLevel == 0 {
		opts.CompressionLevel = envelope.DefaultCompressionLevel
	}
	if opts.Encrypt && (p.sealer == nil || p.sealer.KeyID() == "") {
		p.logger.Warn("encryption requested but no KMS key is configured, uploading unencrypted")
		opts.Encrypt = false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty: %s (no data to upload)", filePath)
	}

	inspection, err := inspectContent(data)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect file: %w", err)
	}
	if opts.DataType != "" {
		inspection.DataType = opts.DataType
	}

	contentHash := ContentHash(data)
	body, err := p.sealer.Pack(ctx, data, envelope.Options{
		Compress:         opts.Compress,
		CompressionLevel: opts.CompressionLevel,
		Encrypt:          opts.Encrypt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}

	key := ContentKey(contentHash)
	tags := fmt.Sprintf("Owner=%s&Component=%s&Purpose=%s",
		url.QueryEscape(p.Identity()),
		url.QueryEscape("storage"),
		url.QueryEscape("dataset-content"),
	)

	_, err = p.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(inspection.DataType),
		Tagging:     aws.String(tags),
		Metadata: map[string]string{
			MetadataCompressed: strconv.FormatBool(opts.Compress),
			MetadataEncrypted:  strconv.FormatBool(opts.Encrypt),
			MetadataDataType:   inspection.DataType,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	p.logger.Info("uploaded dataset content",
		zap.String("bucket", p.bucket),
		zap.String("key", key),
		zap.Int("original_bytes", len(data)),
		zap.Int("stored_bytes", len(body)),
		zap.Bool("compressed", opts.Compress),
		zap.Bool("encrypted", opts.Encrypt),
		zap.Int("records", inspection.Records),
	)

	return &Upload{
		ContentHash: contentHash,
		Bucket:      p.bucket,
		Key:         key,
		SizeBytes:   uint64(len(data)),
		StoredBytes: len(body),
		Compressed:  opts.Compress,
		Encrypted:   opts.Encrypt,
		Inspection:  inspection,
	}, nil
}

// ListMyDatasets returns every dataset listed by this producer.
func (p *Producer) ListMyDatasets(ctx context.Context) ([]types.DatasetDetails, error) {
	ids, err := p.client.GetUserDatasets(ctx, p.Identity())
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	datasets := make([]types.DatasetDetails, 0, len(ids))
	for _, id := range ids {
		details, err := p.client.GetDataset(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get dataset %d: %w", id, err)
		}
		datasets = append(datasets, details)
	}

	return datasets, nil
}

// SetSubscriptionPrice offers subscriptions on a dataset at price per month.
func (p *Producer) SetSubscriptionPrice(ctx context.Context, datasetID, price uint64) error {
	return p.client.SetSubscriptionPrice(ctx, datasetID, price)
}

// GrantAccess allow-lists user on a private dataset.
func (p *Producer) GrantAccess(ctx context.Context, datasetID uint64, user string) error {
	return p.client.GrantAccess(ctx, datasetID, user)
}

// IsListingError reports whether err came from the ledger rather than from storage.
func IsListingError(err error) bool {
	var apiErr *api.APIError

	return errors.As(err, &apiErr)
}
