package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"azure-communication/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	DefaultPrefix     = "transcripts"
	DefaultPresignTTL = 15 * time.Minute
)

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	Prefix     string
	PresignTTL time.Duration
}

// Transcript is the exported document: one thread and its history at the
// moment of export.
type Transcript struct {
	Thread     domain.Thread    `json:"thread"`
	Messages   []domain.Message `json:"messages"`
	ExportedAt time.Time        `json:"exported_at"`
}

// Export describes a written transcript object.
type Export struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	URL          string    `json:"url,omitempty"`
	MessageCount int       `json:"message_count"`
	ExportedAt   time.Time `json:"exported_at"`
}

type Client struct {
	cfg     S3Config
	s3      *s3.Client
	presign *s3.PresignClient
	now     func() time.Time
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// S3-compatible stores often reject the newer default checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &Client{
		cfg:     cfg,
		s3:      s3Client,
		presign: s3.NewPresignClient(s3Client),
		now:     time.Now,
	}, nil
}

// ExportTranscript writes thread and msgs as one JSON object and returns a
// presigned download link for it.
func (c *Client) ExportTranscript(ctx context.Context, thread domain.Thread, msgs []domain.Message) (Export, error) {
	if c == nil {
		return Export{}, errors.New("s3 client not initialized")
	}
	if !thread.HasID() {
		return Export{}, errors.New("thread id is required")
	}

	exportedAt := c.now().UTC()
	if msgs == nil {
		msgs = []domain.Message{}
	}
	body, err := json.Marshal(Transcript{Thread: thread, Messages: msgs, ExportedAt: exportedAt})
	if err != nil {
		return Export{}, fmt.Errorf("marshal transcript: %w", err)
	}

	key := c.ObjectKey(thread.ID, exportedAt)
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return Export{}, fmt.Errorf("put transcript %s: %w", key, err)
	}

	export := Export{
		Bucket:       c.cfg.Bucket,
		Key:          key,
		MessageCount: len(msgs),
		ExportedAt:   exportedAt,
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = c.cfg.PresignTTL
	})
	if err == nil {
		export.URL = presigned.URL
	}
	return export, nil
}

// ObjectKey is {prefix}/{thread id}/{unix millis}.json
func (c *Client) ObjectKey(threadID string, at time.Time) string {
	return path.Join(c.cfg.Prefix, threadID, fmt.Sprintf("%d.json", at.UnixMilli()))
}
