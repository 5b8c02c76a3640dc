package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the archive bucket. Endpoint and static credentials are
// optional (MinIO and other S3-compatible stores need them).
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	BatchSize int
}

// S3Sink buffers events and uploads them as JSON-lines objects, one object
// per batch.
type S3Sink struct {
	client    objectPutter
	bucket    string
	prefix    string
	batchSize int
	log       logging.Logger
	now       func() time.Time

	mu  sync.Mutex
	buf []Event
}

func NewS3Sink(ctx context.Context, cfg S3Config, log logging.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("audit bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Sink(client, cfg, log), nil
}

func newS3Sink(client objectPutter, cfg S3Config, log logging.Logger) *S3Sink {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "audit"
	}
	return &S3Sink{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    prefix,
		batchSize: batch,
		log:       log,
		now:       time.Now,
	}
}

func (s *S3Sink) Emit(ctx context.Context, e Event) {
	s.mu.Lock()
	s.buf = append(s.buf, e)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.log.Error(ctx, "audit archive upload failed", "error", err)
		}
	}
}

// Flush uploads buffered events. On failure the batch is dropped.
func (s *S3Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range batch {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode audit event: %w", err)
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey()),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put audit batch: %w", err)
	}
	return nil
}

func (s *S3Sink) objectKey() string {
	d := s.now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s.jsonl", s.prefix, d.Year(), d.Month(), d.Day(), uuid.New())
}
