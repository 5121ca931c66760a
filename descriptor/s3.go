package descriptor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// S3Source reads the descriptor object from Amazon S3 or a compatible service.
// Without credentials the bucket is assumed to be public.
type S3Source struct {
	client      *s3.S3
	bucket      string
	key         string
	log         *slog.Logger
	locationURI string
}

// NewS3Source creates an S3 descriptor source.
func NewS3Source(bucket, key, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Source, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucket, key, region)
	if endpoint != "" {
		uri += "&endpoint=" + endpoint
	}

	cfg := aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
		log.Debug("No S3 credentials provided, bucket assumed to be public")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Source{
		client:      s3.New(sess),
		bucket:      bucket,
		key:         key,
		log:         log,
		locationURI: uri,
	}, nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == s3.ErrCodeNoSuchBucket) {
			return nil, interfaces.ErrContentNotFound
		}
		if strings.Contains(err.Error(), "404") {
			return nil, interfaces.ErrContentNotFound
		}

		s.log.Error("Failed to get descriptor from S3",
			slog.String("bucket", s.bucket),
			slog.String("key", s.key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, maxDescriptorSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	s.log.Debug("Fetched descriptor from S3",
		slog.String("bucket", s.bucket),
		slog.String("key", s.key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Available checks that the object can be located.
func (s *S3Source) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		s.log.Debug("S3 descriptor unavailable", "err", err)
		return false
	}
	return true
}

func (s *S3Source) Name() string {
	return fmt.Sprintf("s3-%s", s.bucket)
}

func (s *S3Source) LocationURI() string {
	return s.locationURI
}
