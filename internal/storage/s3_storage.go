package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
)

type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Storage stores evidence in one bucket.
type S3Storage struct {
	bucket  string
	client  s3API
	presign s3Presigner
}

func NewS3Storage(ctx context.Context, bucket, region string) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Storage{
		bucket:  bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (s *S3Storage) GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", domain.NewAvailabilityError(domain.ErrStorageUnavailable.Dependency, err)
	}
	return req.URL, nil
}

func (s *S3Storage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", domain.NewAvailabilityError(domain.ErrStorageUnavailable.Dependency, err)
	}
	return req.URL, nil
}

func (s *S3Storage) FileExists(ctx context.Context, key string) (bool, int64, error) {
	logger.ExternalServiceCall("s3", "head_object", "key", key)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noKey) {
			logger.ExternalServiceResult("s3", "head_object", nil, "exists", false)
			return false, 0, nil
		}
		logger.ExternalServiceResult("s3", "head_object", err)
		return false, 0, domain.NewAvailabilityError(domain.ErrStorageUnavailable.Dependency, err)
	}
	logger.ExternalServiceResult("s3", "head_object", nil, "exists", true)
	return true, aws.ToInt64(out.ContentLength), nil
}

func (s *S3Storage) DeleteFile(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.NewAvailabilityError(domain.ErrStorageUnavailable.Dependency, err)
	}
	return nil
}
