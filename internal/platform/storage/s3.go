package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
)

// ErrEmptyKey is returned when an object key is blank.
var ErrEmptyKey = errors.New("object key cannot be empty")

// putter is the subset of *s3.Client used for uploads.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presigner is the subset of *s3.PresignClient used for downloads.
type presigner interface {
	PresignGetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.PresignOptions),
	) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores objects in a single bucket.
type S3Store struct {
	bucket     string
	presignTTL time.Duration
	client     putter
	presign    presigner
	logger     *slog.Logger
}

// NewS3Store builds a store from cfg. Static credentials are used when
// configured, otherwise the default AWS credential chain applies. A custom
// endpoint switches to path-style addressing for S3-compatible servers.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(cfg.Bucket, cfg.PresignTTL, client, s3.NewPresignClient(client), logger), nil
}

func newS3Store(bucket string, ttl time.Duration, client putter, presign presigner, log *slog.Logger) *S3Store {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Store{
		bucket:     bucket,
		presignTTL: ttl,
		client:     client,
		presign:    presign,
		logger:     log.With("component", "object_store", "bucket", bucket),
	}
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("object stored",
		"key", key,
		"size_bytes", len(data),
		"content_type", contentType)
	return nil
}

// PresignGet returns a time-limited GET URL for key.
func (s *S3Store) PresignGet(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrEmptyKey
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// ResolveURL turns a stored reference into a URL a third party can fetch.
func (s *S3Store) ResolveURL(ctx context.Context, ref string) (string, error) {
	if IsURL(ref) {
		return ref, nil
	}
	return s.PresignGet(ctx, ref)
}

// SavePhoto normalizes a shopper photo and stores it as JPEG.
func (s *S3Store) SavePhoto(ctx context.Context, deviceID uuid.UUID, r io.Reader, limits PhotoLimits) (string, error) {
	data, err := NormalizePhoto(r, limits)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("photos/%s/%s.jpg", deviceID, uuid.New())
	if err := s.Put(ctx, key, data, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

// SaveRender stores a rendered try-on image for taskID.
func (s *S3Store) SaveRender(ctx context.Context, taskID uuid.UUID, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("renders/%s%s", taskID, extensionFor(contentType))
	if err := s.Put(ctx, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// IsURL reports whether ref is an absolute http(s) URL rather than an object key.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
