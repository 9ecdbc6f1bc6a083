package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional, for S3-compatible stores
	AccessKeyID     string // Empty uses the default credential chain
	SecretAccessKey string
	HTTPClient      *http.Client
}

// S3 stores files as objects in one bucket.
type S3 struct {
	client *s3.S3
	bucket string
}

// NewS3 creates an S3 storage.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.HTTPClient != nil {
		awsCfg.HTTPClient = cfg.HTTPClient
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3{
		client: s3.New(sess),
		bucket: cfg.Bucket,
	}, nil
}

// Open implements Storage.
func (s *S3) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := CleanRef(ref)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return out.Body, nil
}

// Put implements Storage. The body is buffered so the request can be signed.
func (s *S3) Put(ctx context.Context, ref string, data io.Reader) error {
	key, err := CleanRef(ref)
	if err != nil {
		return err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read body for %s: %w", ref, err)
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ref, err)
	}
	return nil
}

// Exists implements Storage.
func (s *S3) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := CleanRef(ref)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", ref, err)
	}
	return true, nil
}

// Delete implements Storage.
func (s *S3) Delete(ctx context.Context, ref string) error {
	key, err := CleanRef(ref)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

var _ Storage = (*S3)(nil)
