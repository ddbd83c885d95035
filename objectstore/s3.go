package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config describes an S3-compatible endpoint such as NCP Object Storage.
type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3 stores objects in an S3-compatible service with public-read ACLs.
type S3 struct {
	client        *s3.Client
	publicBaseURL string
}

var _ Storage = (*S3)(nil)

// NewS3 builds an S3 client with static credentials and path-style addressing.
func NewS3(c S3Config) *S3 {
	awsCfg := aws.Config{
		Region:      c.Region,
		Credentials: credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(c.Endpoint)
		}
		o.UsePathStyle = true
	})
	base := c.PublicBaseURL
	if base == "" {
		base = c.Endpoint
	}
	return &S3{client: client, publicBaseURL: base}
}

// Put uploads body under bucket/key and returns its public URL.
func (s *S3) Put(ctx context.Context, bucket, key string, body io.ReadSeeker, contentType string) (string, error) {
	if !validKey(bucket, key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s/%s: %w", bucket, key, err)
	}
	return PublicURL(s.publicBaseURL, bucket, key), nil
}

// Delete removes bucket/key. Deleting a missing object is not an error in S3.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	if !validKey(bucket, key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, err)
	}
	return nil
}
