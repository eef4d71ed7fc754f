// Package backup mirrors the orchestrator's durable state (the sqlite state
// database and the jobs snapshot) to an S3-compatible bucket.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Sentinel errors mapped from provider error codes, so callers can react
// without parsing messages.
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Config configures the backup target.
//
// Authentication follows the AWS SDK v2 default chain unless explicit
// credentials are provided. For S3-compatible stores (MinIO, Wasabi,
// DigitalOcean Spaces), set Endpoint and usually UsePathStyle.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("backup config: bucket name is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return fmt.Errorf("backup config: access key id and secret access key must be provided together")
	}
	return nil
}

// Uploader is the slice of the S3 API the mirror needs. *s3.Client
// satisfies it.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Mirror uploads state files to one bucket under a common prefix.
type Mirror struct {
	client Uploader
	bucket string
	prefix string
	logger *zap.Logger
}

// New builds a mirror with a real S3 client from the config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.UsePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

// NewWithClient builds a mirror over an existing client. Used by tests.
func NewWithClient(client Uploader, cfg Config, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

// Result reports one completed backup run.
type Result struct {
	Uploaded []string  `json:"uploaded"`
	Skipped  []string  `json:"skipped,omitempty"`
	RunAt    time.Time `json:"run_at"`
}

// Run uploads each named local file that exists. Missing files are skipped
// rather than failing the run: a fresh install has no state database yet.
func (m *Mirror) Run(ctx context.Context, files ...string) (*Result, error) {
	res := &Result{RunAt: time.Now().UTC()}

	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			if os.IsNotExist(err) {
				res.Skipped = append(res.Skipped, file)
				continue
			}
			return res, fmt.Errorf("open %s: %w", file, err)
		}

		key := m.keyFor(file)
		_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		_ = f.Close()
		if err != nil {
			return res, fmt.Errorf("upload %s to s3://%s/%s: %w", file, m.bucket, key, classify(err))
		}

		res.Uploaded = append(res.Uploaded, key)
		m.logger.Info("uploaded backup object",
			zap.String("file", file),
			zap.String("bucket", m.bucket),
			zap.String("key", key))
	}

	return res, nil
}

func (m *Mirror) keyFor(file string) string {
	return path.Join(m.prefix, path.Base(file))
}

// classify maps provider error codes onto sentinel errors where a stable
// code exists, and passes everything else through unchanged.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrBucketNotFound, apiErr.ErrorMessage())
	case "AccessDenied", "Forbidden":
		return fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorMessage())
	}
	return err
}
