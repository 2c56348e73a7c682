// Package envelope implements the gzip and KMS envelope encoding used for
// dataset content and ledger snapshots at rest.
//
// Encrypted payloads are laid out as
//
//	[4 bytes: key length][KMS-encrypted data key][16 bytes: IV][16 bytes: tag][ciphertext]
//
// where the ciphertext is AES-256-GCM with a 16-byte nonce.
package envelope

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

const (
	dataKeySize = 32
	nonceSize   = 16
	tagSize     = 16

	// DefaultCompressionLevel balances speed and size.
	DefaultCompressionLevel = 6
)

// ErrNoKey is returned when encryption is requested without a KMS key.
var ErrNoKey = errors.New("KMS key not configured")

// KMS is the subset of the KMS client used for data keys.
type KMS interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Options selects the encoding steps. Compression always runs before encryption.
type Options struct {
	Compress         bool
	CompressionLevel int
	Encrypt          bool
}

// Sealer encrypts and decrypts payloads with a per-payload data key wrapped by KMS.
type Sealer struct {
	kms   KMS
	keyID string
}

// NewSealer creates a Sealer. keyID may be empty for a Sealer that only decrypts.
func NewSealer(client KMS, keyID string) *Sealer {
	return &Sealer{kms: client, keyID: keyID}
}

// KeyID returns the KMS key used for new payloads.
func (s *Sealer) KeyID() string {
	return s.keyID
}

// Compress gzips data at the given level (1-9, 0 for the default).
func Compress(data []byte, level int) ([]byte, error) {
	if level == 0 {
		level = DefaultCompressionLevel
	}

	var buf bytes.Buffer
	gzWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := gzWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream: %w", err)
	}

	return out, nil
}

// Encrypt seals data under a fresh data key.
func (s *Sealer) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	if s == nil || s.kms == nil || s.keyID == "" {
		return nil, ErrNoKey
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	aesGCM, err := newGCM(dataKey)
	if err != nil {
		return nil, err
	}

	// Seal appends the tag; it is stored ahead of the ciphertext.
	sealed := aesGCM.Seal(nil, iv, data, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	authTag := sealed[len(sealed)-tagSize:]

	encryptOutput, err := s.kms.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(s.keyID),
		Plaintext: dataKey,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS encryption failed: %w", err)
	}

	var result bytes.Buffer
	if err := binary.Write(&result, binary.BigEndian, uint32(len(encryptOutput.CiphertextBlob))); err != nil {
		return nil, fmt.Errorf("failed to write key length: %w", err)
	}
	result.Write(encryptOutput.CiphertextBlob)
	result.Write(iv)
	result.Write(authTag)
	result.Write(ciphertext)

	return result.Bytes(), nil
}

// Decrypt opens a payload produced by Encrypt.
func (s *Sealer) Decrypt(ctx context.Context, data []byte) ([]byte, error) {
	if s == nil || s.kms == nil {
		return nil, ErrNoKey
	}

	buf := bytes.NewReader(data)

	var keyLen uint32
	if err := binary.Read(buf, binary.BigEndian, &keyLen); err != nil {
		return nil, fmt.Errorf("failed to read key length: %w", err)
	}
	if int64(keyLen) > int64(buf.Len()) {
		return nil, fmt.Errorf("encrypted key length %d exceeds payload", keyLen)
	}

	encryptedKey := make([]byte, keyLen)
	if _, err := io.ReadFull(buf, encryptedKey); err != nil {
		return nil, fmt.Errorf("failed to read encrypted key: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(buf, iv); err != nil {
		return nil, fmt.Errorf("failed to read IV: %w", err)
	}

	authTag := make([]byte, tagSize)
	if _, err := io.ReadFull(buf, authTag); err != nil {
		return nil, fmt.Errorf("failed to read auth tag: %w", err)
	}

	ciphertext, err := io.ReadAll(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read ciphertext: %w", err)
	}

	decryptOut, err := s.kms.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: encryptedKey,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS decrypt failed: %w", err)
	}

	aesGCM, err := newGCM(decryptOut.Plaintext)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, iv, append(ciphertext, authTag...), nil)
	if err != nil {
		return nil, fmt.Errorf("AES-GCM decrypt failed: %w", err)
	}

	return plaintext, nil
}

// Pack compresses then encrypts data as selected by opts.
func (s *Sealer) Pack(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	var err error
	if opts.Compress {
		if data, err = Compress(data, opts.CompressionLevel); err != nil {
			return nil, err
		}
	}
	if opts.Encrypt {
		if data, err = s.Encrypt(ctx, data); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// Unpack reverses Pack: decrypt first, then decompress.
func (s *Sealer) Unpack(ctx context.Context, data []byte, opts Options) ([]byte, error) {
	var err error
	if opts.Encrypt {
		if data, err = s.Decrypt(ctx, data); err != nil {
			return nil, err
		}
	}
	if opts.Compress {
		if data, err = Decompress(data); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aesGCM, nil
}
