package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Config configures an S3 or MinIO backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for MinIO, e.g. "localhost:9000"
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// S3Backend stores objects in one bucket.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	logger   zerolog.Logger
}

// NewS3Backend builds the client. Static credentials fall back to the
// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY environment, then to the default
// credential chain.
func NewS3Backend(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket name is required")
	}
	log := logger.With().Str("component", "s3-objectstore").Logger()

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secretKey == "" {
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
		log.Info().Msg("Using static credentials for S3")
	} else {
		log.Info().Msg("Using default credential chain for S3")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			if cfg.UseSSL {
				endpoint = "https://" + endpoint
			} else {
				endpoint = "http://" + endpoint
			}
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
		log.Info().Str("endpoint", endpoint).Msg("Using custom S3 endpoint")
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		region:   region,
		logger:   log,
	}, nil
}

// Ensure creates the bucket when HeadBucket cannot see it.
func (b *S3Backend) Ensure(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)}); err == nil {
		return nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.bucket)}
	if b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err := b.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", b.bucket, err)
	}
	b.logger.Info().Str("bucket", b.bucket).Msg("Created S3 bucket")
	return nil
}

// Create uploads data with If-None-Match: *, so S3 refuses to replace an
// existing key. Small bodies go out as a single PutObject.
func (b *S3Backend) Create(ctx context.Context, path string, data []byte) error {
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/msgpack"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isS3Conflict(err) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("failed to write to S3: %w", err)
	}
	return nil
}

// Get downloads the object at path.
func (b *S3Backend) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

func (b *S3Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (b *S3Backend) Close() error {
	return nil
}

func (b *S3Backend) Type() string {
	return "s3"
}

// isS3Conflict reports a failed If-None-Match precondition. S3 answers 412,
// or 409 when a concurrent conditional write to the same key is in flight.
func isS3Conflict(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "PreconditionFailed") || strings.Contains(msg, "StatusCode: 412")
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	// MinIO and some gateways only surface the HTTP status text.
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}
