// Package offsite copies finished archives to S3-compatible object storage.
package offsite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"zbackup/internal/config"
	"zbackup/internal/zb"
)

const defaultRegion = "us-east-1"

// partUploader is the subset of manager.Uploader used here.
type partUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader uploads archives with the S3 multipart upload manager.
type S3Uploader struct {
	uploader partUploader
	bucket   string
	prefix   string
	logger   zb.Logger
}

var _ zb.Uploader = (*S3Uploader)(nil)

// NewS3Uploader creates an uploader for the bucket described by cfg.
func NewS3Uploader(ctx context.Context, cfg config.OffsiteConfig, logger zb.Logger) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3: bucket name is required")
	}
	if logger == nil {
		logger = zb.NewNopLogger()
	}

	region := cfg.S3Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
		o.DisableLogOutputChecksumValidationSkipped = true
	})

	return newS3Uploader(manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix, logger), nil
}

func newS3Uploader(u partUploader, bucket, prefix string, logger zb.Logger) *S3Uploader {
	return &S3Uploader{uploader: u, bucket: bucket, prefix: prefix, logger: logger}
}

// Key returns the object key an archive is stored under.
func (u *S3Uploader) Key(archive *zb.Archive) string {
	if u.prefix == "" {
		return archive.Name
	}
	return path.Join(u.prefix, archive.Name)
}

// Upload copies the archive to the bucket.
func (u *S3Uploader) Upload(ctx context.Context, archive *zb.Archive) error {
	f, err := os.Open(archive.Path)
	if err != nil {
		return fmt.Errorf("s3: opening archive: %w", err)
	}
	defer f.Close()

	key := u.Key(archive)
	u.logger.Info("uploading archive", "bucket", u.bucket, "key", key)

	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3: uploading %s: %w", key, err)
	}

	u.logger.Debug("archive uploaded", "key", key, "location", out.Location)
	return nil
}
