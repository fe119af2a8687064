package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/infrastructure/metrics"
)

const deleteObjectsLimit = 1000

var errStorageDisabled = errors.New("file storage is not configured; set USER_FILES_BUCKET to enable uploads")

// S3Storage stores project files in an S3 bucket and issues presigned URLs for them.
type S3Storage struct {
	bucket   string
	client   *s3.Client
	presign  *s3.PresignClient
	log      zerolog.Logger
	disabled bool
}

func NewS3Storage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3Storage, error) {
	logger := log.With().Str("component", "s3-storage").Logger()
	storage := &S3Storage{
		bucket: strings.TrimSpace(cfg.S3Bucket),
		log:    logger,
	}
	if storage.bucket == "" {
		logger.Warn().Msg("USER_FILES_BUCKET is not set; file uploads will be disabled until configured")
		storage.disabled = true
		return storage, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := strings.TrimSpace(cfg.S3SecretKey)
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	storage.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	// Browsers may reach the object store through another host than the service does.
	publicEndpoint := cfg.S3PublicEndpoint
	if publicEndpoint == "" {
		publicEndpoint = cfg.S3Endpoint
	}
	publicClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		if publicEndpoint != "" {
			o.BaseEndpoint = aws.String(publicEndpoint)
		}
	})
	storage.presign = s3.NewPresignClient(publicClient)
	return storage, nil
}

func (s *S3Storage) ensureEnabled() error {
	if s.disabled {
		return errStorageDisabled
	}
	return nil
}

func (s *S3Storage) Bucket() string {
	return s.bucket
}

// PresignPut returns a URL the client uses to upload the object body.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if err := s.ensureEnabled(); err != nil {
		return "", err
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		metrics.RecordS3Operation("presign_put", "error")
		return "", err
	}
	metrics.RecordS3Operation("presign_put", "success")
	s.log.Debug().Str("key", key).Msg("generated upload url")
	return req.URL, nil
}

// PresignDownload returns a URL that makes browsers save the object as filename.
func (s *S3Storage) PresignDownload(ctx context.Context, bucket, key, filename string, ttl time.Duration) (string, error) {
	if err := s.ensureEnabled(); err != nil {
		return "", err
	}
	if bucket == "" {
		bucket = s.bucket
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(ContentDisposition(filename))
		if strings.HasSuffix(strings.ToLower(filename), ".txt") {
			input.ResponseContentType = aws.String("application/octet-stream")
		}
	}
	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		metrics.RecordS3Operation("presign_get", "error")
		return "", err
	}
	metrics.RecordS3Operation("presign_get", "success")
	return req.URL, nil
}

// ContentDisposition forces a download under the escaped file name.
func ContentDisposition(filename string) string {
	encoded := url.PathEscape(filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, encoded, encoded)
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s.ensureEnabled(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordS3Operation("delete", "error")
		return err
	}
	metrics.RecordS3Operation("delete", "success")
	return nil
}

// DeletePrefix removes every object under prefix and returns how many were deleted.
func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := s.ensureEnabled(); err != nil {
		return 0, err
	}
	s.log.Info().Str("prefix", prefix).Str("bucket", s.bucket).Msg("deleting folder")

	keys := make([]types.ObjectIdentifier, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordS3Operation("list", "error")
			return 0, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, types.ObjectIdentifier{Key: obj.Key})
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	for start := 0; start < len(keys); start += deleteObjectsLimit {
		end := start + deleteObjectsLimit
		if end > len(keys) {
			end = len(keys)
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			metrics.RecordS3Operation("delete_prefix", "error")
			return start, err
		}
	}
	metrics.RecordS3Operation("delete_prefix", "success")
	return len(keys), nil
}

// Health performs a HeadBucket request.
func (s *S3Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
