// Package snapshot persists ledger state to S3 as gzipped JSON, optionally
// sealed with a KMS envelope.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/envelope"
	"github.com/helix-tools/ledger-go/types"
)

// ErrNotFound is returned by Load when no snapshot exists yet.
var ErrNotFound = errors.New("snapshot not found")

// S3API is the subset of the S3 client used for snapshots.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config configures a Store.
type Config struct {
	Bucket string
	Key    string
	// Sealer encrypts snapshots when it carries a KMS key. Nil stores them unencrypted.
	Sealer *envelope.Sealer
	Logger *zap.Logger
}

// Store saves and loads one snapshot object.
type Store struct {
	s3     S3API
	bucket string
	key    string
	sealer *envelope.Sealer
	logger *zap.Logger
}

// NewStore creates a Store. The key defaults to "ledger/state.json.gz".
func NewStore(client S3API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot bucket is required")
	}
	if cfg.Key == "" {
		cfg.Key = "ledger/state.json.gz"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Store{
		s3:     client,
		bucket: cfg.Bucket,
		key:    cfg.Key,
		sealer: cfg.Sealer,
		logger: cfg.Logger,
	}, nil
}

func (s *Store) encrypted() bool {
	return s.sealer != nil && s.sealer.KeyID() != ""
}

// Save writes state, replacing any previous snapshot.
func (s *Store) Save(ctx context.Context, state types.LedgerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	encrypted := s.encrypted()
	body, err := s.sealer.Pack(ctx, data, envelope.Options{Compress: true, Encrypt: encrypted})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tags := fmt.Sprintf("Component=%s&Purpose=%s&Encrypted=%t",
		url.QueryEscape("ledger"),
		url.QueryEscape("state-snapshot"),
		encrypted,
	)

	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType(encrypted)),
		Tagging:     aws.String(tags),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	s.logger.Info("saved ledger snapshot",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.Uint64("datasets", state.DatasetCount),
		zap.Uint64("event_sequence", state.EventSequence),
		zap.Int("bytes", len(body)),
		zap.Bool("encrypted", encrypted),
	)

	return nil
}

// Load reads the snapshot. It returns ErrNotFound when none has been saved.
func (s *Store) Load(ctx context.Context) (types.LedgerState, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return types.LedgerState{}, ErrNotFound
		}
		return types.LedgerState{}, fmt.Errorf("failed to download snapshot from S3: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return types.LedgerState{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	encrypted := aws.ToString(out.ContentType) == contentType(true)
	data, err := s.sealer.Unpack(ctx, body, envelope.Options{Compress: true, Encrypt: encrypted})
	if err != nil {
		return types.LedgerState{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	var state types.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return types.LedgerState{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return state, nil
}

func contentType(encrypted bool) string {
	if encrypted {
		return "application/vnd.ledger.snapshot+gzip+kms"
	}

	return "application/gzip"
}
