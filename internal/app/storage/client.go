package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"holidaze/internal/configs"
	"holidaze/internal/pkg/logx"
)

// s3Client implements Backend against S3-compatible storage.
type s3Client struct {
	bucket   string
	s3Client *s3.Client
	presign  *s3.PresignClient
}

// newS3Client initializes the S3 client using a custom configuration that supports S3-compatible endpoints.
func newS3Client(ctx context.Context, cfg configs.StorageConfig) (*s3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: loading S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &s3Client{
		bucket:   cfg.Bucket,
		s3Client: client,
		presign:  s3.NewPresignClient(client),
	}, nil
}

// PresignUpload generates a presigned URL for uploading an object with the given type and size.
func (c *s3Client) PresignUpload(ctx context.Context, key, mimeType string, size int64, duration time.Duration) (string, error) {
	resp, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		ContentType:   &mimeType,
		ContentLength: &size,
	}, s3.WithPresignExpires(duration))
	if err != nil {
		logx.Error(err, "Failed to presign upload", "key", key)
		return "", fmt.Errorf("%w: presigning %s", ErrStorageFailed, key)
	}
	return resp.URL, nil
}

// Delete removes the object with the given key from the bucket.
func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		logx.Error(err, "S3 delete failed", "key", key)
		return fmt.Errorf("%w: deleting %s", ErrStorageFailed, key)
	}
	return nil
}

// GetObjectMetadata returns the type and size of an uploaded object.
func (c *s3Client) GetObjectMetadata(ctx context.Context, key string) (ObjectInfo, error) {
	resp, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		logx.Error(err, "Failed to read S3 object metadata", "key", key)
		return ObjectInfo{}, fmt.Errorf("%w: reading metadata of %s", ErrStorageFailed, key)
	}

	info := ObjectInfo{Key: key}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	return info, nil
}
