package audit

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/fieldgate/pkg/logging"
)

// ArchiveConfig configures shipping of rotated audit segments to
// S3-compatible object storage for long-term compliance retention.
type ArchiveConfig struct {
	Bucket    string        `yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	Region    string        `yaml:"region"`
	Endpoint  string        `yaml:"endpoint,omitempty"` // non-AWS S3-compatible stores
	AccessKey string        `yaml:"access_key,omitempty"`
	SecretKey string        `yaml:"secret_key,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Archiver uploads closed audit segments, gzipped, to object storage.
// Archival is best effort: a failed upload is logged and retried on the next
// rotation, never blocking appends.
type Archiver struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  logging.Logger
}

// NewArchiver builds an archiver from config. Returns nil (disabled) when no
// bucket is configured.
func NewArchiver(ctx context.Context, cfg *ArchiveConfig, logger logging.Logger) (*Archiver, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Archiver{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: timeout,
		logger:  logger.With(logging.Component("audit-archiver")),
	}, nil
}

// ArchiveSegment gzips a closed segment and uploads it. Intended to run as
// the log's rotation hook.
func (a *Archiver) ArchiveSegment(path string) {
	if a == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.upload(ctx, path); err != nil {
		a.logger.Error("audit segment archive failed",
			logging.String("segment", path),
			logging.Error(err))
		return
	}
	a.logger.Info("audit segment archived", logging.String("segment", path))
}

func (a *Archiver) upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read segment: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("compress segment: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress segment: %w", err)
	}

	key := filepath.Base(path) + ".gz"
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("upload segment: %w", err)
	}
	return nil
}
