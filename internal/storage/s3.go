// Package storage uploads product images to S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedImage is returned for uploads that are not PNG or JPEG.
var ErrUnsupportedImage = errors.New("image must be PNG or JPEG")

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// putObjectAPI is the subset of *s3.Client used here.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points at an S3-compatible service (MinIO, LocalStack).
	// Path-style addressing is used when it is set.
	Endpoint string
}

// S3 is an Uploader backed by an S3 bucket.
type S3 struct {
	client  putObjectAPI
	bucket  string
	baseURL string
}

// NewS3 loads the AWS configuration and builds the client.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(client, opts), nil
}

func newS3(client putObjectAPI, opts S3Options) *S3 {
	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	if opts.Endpoint != "" {
		base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	}
	return &S3{client: client, bucket: opts.Bucket, baseURL: base}
}

// Upload writes the object and returns its URL.
func (s *S3) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// DetectImage sniffs the content type of an image upload.
func DetectImage(head []byte) (string, error) {
	switch ct := http.DetectContentType(head); ct {
	case "image/png", "image/jpeg":
		return ct, nil
	default:
		return "", ErrUnsupportedImage
	}
}

// ProductImageKey returns a fresh object key for a product image.
func ProductImageKey(productID int64, contentType string) string {
	ext := ".png"
	if contentType == "image/jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("products/%d/%s%s", productID, uuid.NewString(), ext)
}
