// Package awstest provides in-memory stand-ins for the KMS, S3 and SQS
// clients so packages can be tested without AWS.
package awstest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// KMS wraps data keys by remembering them behind opaque handles.
type KMS struct {
	mu   sync.Mutex
	keys map[string][]byte
	next int

	// Err, when set, is returned by every call.
	Err error
}

func NewKMS() *KMS {
	return &KMS{keys: make(map[string][]byte)}
}

func (k *KMS) Encrypt(_ context.Context, params *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.Err != nil {
		return nil, k.Err
	}

	k.next++
	handle := fmt.Sprintf("%s/%d", aws.ToString(params.KeyId), k.next)
	k.keys[handle] = bytes.Clone(params.Plaintext)

	return &kms.EncryptOutput{CiphertextBlob: []byte(handle), KeyId: params.KeyId}, nil
}

func (k *KMS) Decrypt(_ context.Context, params *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.Err != nil {
		return nil, k.Err
	}

	key, ok := k.keys[string(params.CiphertextBlob)]
	if !ok {
		return nil, errors.New("InvalidCiphertextException")
	}

	return &kms.DecryptOutput{Plaintext: bytes.Clone(key)}, nil
}

// Object is one stored S3 object.
type Object struct {
	Body        []byte
	ContentType string
	Tagging     string
	Metadata    map[string]string
}

// S3 stores objects in memory keyed by bucket and key.
type S3 struct {
	mu      sync.Mutex
	objects map[string]Object

	Err error
}

func NewS3() *S3 {
	return &S3{objects: make(map[string]Object)}
}

func (s *S3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var body []byte
	if params.Body != nil {
		var err error
		if body, err = io.ReadAll(params.Body); err != nil {
			return nil, err
		}
	}

	s.objects[objectKey(params.Bucket, params.Key)] = Object{
		Body:        body,
		ContentType: aws.ToString(params.ContentType),
		Tagging:     aws.ToString(params.Tagging),
		Metadata:    maps.Clone(params.Metadata),
	}

	return &s3.PutObjectOutput{}, nil
}

func (s *S3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	obj, ok := s.objects[objectKey(params.Bucket, params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.Body)),
		ContentLength: aws.Int64(int64(len(obj.Body))),
		ContentType:   aws.String(obj.ContentType),
		Metadata:      maps.Clone(obj.Metadata),
	}, nil
}

// Object returns the stored object at bucket/key.
func (s *S3) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectKey(&bucket, &key)]

	return obj, ok
}

func objectKey(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

// SQS is a single in-memory queue. Received messages stay queued until deleted.
type SQS struct {
	mu       sync.Mutex
	messages []sqstypes.Message
	next     int

	Err error
}

func NewSQS() *SQS {
	return &SQS{}
}

func (q *SQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Err != nil {
		return nil, q.Err
	}

	q.next++
	id := fmt.Sprintf("msg-%d", q.next)
	q.messages = append(q.messages, sqstypes.Message{
		MessageId:         aws.String(id),
		ReceiptHandle:     aws.String("rh-" + id),
		Body:              params.MessageBody,
		MessageAttributes: params.MessageAttributes,
	})

	return &sqs.SendMessageOutput{MessageId: aws.String(id)}, nil
}

func (q *SQS) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Err != nil {
		return nil, q.Err
	}

	limit := int(params.MaxNumberOfMessages)
	if limit <= 0 {
		limit = 1
	}
	if limit > len(q.messages) {
		limit = len(q.messages)
	}

	out := make([]sqstypes.Message, limit)
	copy(out, q.messages[:limit])

	return &sqs.ReceiveMessageOutput{Messages: out}, nil
}

func (q *SQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Err != nil {
		return nil, q.Err
	}

	handle := aws.ToString(params.ReceiptHandle)
	for i, m := range q.messages {
		if aws.ToString(m.ReceiptHandle) == handle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return &sqs.DeleteMessageOutput{}, nil
		}
	}

	return nil, &sqstypes.ReceiptHandleIsInvalid{Message: aws.String("receipt handle not found")}
}

// Len returns the number of messages still queued.
func (q *SQS) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.messages)
}

// Bodies returns the bodies of all queued messages.
func (q *SQS) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]string, 0, len(q.messages))
	for _, m := range q.messages {
		out = append(out, aws.ToString(m.Body))
	}

	return out
}
