package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner signs GetObject requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps objects in a single bucket and serves presigned download URLs.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	urlTTL    time.Duration
	logger    *logging.Logger
}

// NewS3Store builds a store on an SDK client.
func NewS3Store(client *s3.Client, bucket string, urlTTL time.Duration, logger *logging.Logger) *S3Store {
	if client == nil {
		panic("blobstore: s3 client required")
	}
	return newS3Store(client, s3.NewPresignClient(client), bucket, urlTTL, logger)
}

func newS3Store(client S3API, presigner Presigner, bucket string, urlTTL time.Duration, logger *logging.Logger) *S3Store {
	if bucket == "" {
		panic("blobstore: bucket required")
	}
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Store{client: client, presigner: presigner, bucket: bucket, urlTTL: urlTTL, logger: logger}
}

func (s *S3Store) Upload(ctx context.Context, path string, body io.Reader, contentType string) (Ref, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: read body: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: s3 put %s: %w", path, err)
	}
	s.logger.Debug("uploaded object", "key", path, "bytes", len(data))
	return Ref{Path: path, Name: baseName(path), ContentType: contentType, Size: int64(len(data)), UpdatedAt: time.Now().UTC()}, nil
}

func (s *S3Store) DownloadURL(ctx context.Context, ref Ref) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Path),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("blobstore: presign %s: %w", ref.Path, err)
	}
	return req.URL, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Ref, error) {
	var refs []Ref
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("blobstore: s3 list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			refs = append(refs, Ref{
				Path:      key,
				Name:      baseName(key),
				Size:      aws.ToInt64(obj.Size),
				UpdatedAt: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return refs, nil
		}
		token = out.NextContinuationToken
	}
}
