// Package keysync downloads proving keys from object storage at startup so
// the external proving pipeline finds them on the local filesystem.
package keysync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// KeySpec names one proving key: where it lives in object storage and where
// the pipeline expects it locally.
type KeySpec struct {
	Name string
	URI  string // s3://bucket/key
	Path string
}

// ObjectFetcher is the slice of the S3 API the syncer needs.
type ObjectFetcher interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Syncer downloads missing proving keys. Failures are reported but a partial
// sync is not fatal: the pipeline script surfaces a missing key on first use.
type Syncer struct {
	fetcher ObjectFetcher
	logger  *zap.Logger
}

func New(fetcher ObjectFetcher, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{fetcher: fetcher, logger: logger}
}

// NewFromEnv builds a syncer on the default AWS credential chain.
func NewFromEnv(ctx context.Context, logger *zap.Logger) (*Syncer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(s3.NewFromConfig(awsCfg), logger), nil
}

// Sync ensures every spec's local path exists, downloading from object
// storage when it does not. It returns the number of keys downloaded and the
// first error encountered; remaining specs are still attempted.
func (s *Syncer) Sync(ctx context.Context, specs []KeySpec) (int, error) {
	downloaded := 0
	var firstErr error
	for _, spec := range specs {
		ok, err := s.syncOne(ctx, spec)
		if err != nil {
			s.logger.Warn("proving key sync failed",
				zap.String("key", spec.Name),
				zap.String("uri", spec.URI),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			downloaded++
		}
	}
	return downloaded, firstErr
}

func (s *Syncer) syncOne(ctx context.Context, spec KeySpec) (bool, error) {
	if spec.URI == "" || spec.Path == "" {
		return false, nil
	}
	if _, err := os.Stat(spec.Path); err == nil {
		s.logger.Debug("proving key present", zap.String("key", spec.Name), zap.String("path", spec.Path))
		return false, nil
	}

	bucket, key, err := ParseS3URI(spec.URI)
	if err != nil {
		return false, err
	}

	s.logger.Info("downloading proving key",
		zap.String("key", spec.Name),
		zap.String("uri", spec.URI),
		zap.String("path", spec.Path))

	out, err := s.fetcher.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("get %s: %w", spec.URI, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(spec.Path), 0755); err != nil {
		return false, err
	}

	// Write to a temp file and rename so a partial download never passes the
	// exists check on the next start.
	tmp, err := os.CreateTemp(filepath.Dir(spec.Path), filepath.Base(spec.Path)+".partial-*")
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, fmt.Errorf("download %s: %w", spec.URI, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, err
	}
	if err := os.Rename(tmp.Name(), spec.Path); err != nil {
		os.Remove(tmp.Name())
		return false, err
	}
	return true, nil
}

// ParseS3URI splits s3://bucket/key into its parts.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 uri: %q", uri)
	}
	return bucket, key, nil
}
