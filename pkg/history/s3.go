package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/fractalyze/perfgate/pkg/config"
	"github.com/fractalyze/perfgate/pkg/report"
)

// Compile-time interface check.
var _ Store = (*s3Store)(nil)

type s3Store struct {
	log    logrus.FieldLogger
	client *s3.Client
	bucket string
	prefix string
	window int
}

// NewS3Store creates a Store backed by S3-compatible storage. The
// history document for an implementation lives at
// {prefix}/{implementation}/history.json.
func NewS3Store(log logrus.FieldLogger, cfg *config.S3StorageConfig, window int) Store {
	return &s3Store{
		log:    log.WithField("component", "history-s3"),
		client: newS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.TrimRight(cfg.Prefix, "/"),
		window: window,
	}
}

func newS3Client(cfg *config.S3StorageConfig) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

func (s *s3Store) key(implementation string) string {
	if s.prefix == "" {
		return implementation + "/" + historyFilename
	}

	return s.prefix + "/" + implementation + "/" + historyFilename
}

// Load reads the history document from S3. A missing key returns an
// empty window.
func (s *s3Store) Load(ctx context.Context, implementation string) (*Window, error) {
	key := s.key(implementation)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return &Window{}, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	var w Window
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing history for %s: %w", implementation, err)
	}

	return &w, nil
}

// Append performs the read-modify-write of the history document. S3
// provides no transactional guarantees here; the caller must ensure a
// single writer per implementation.
func (s *s3Store) Append(
	ctx context.Context, implementation string, rep *report.BenchmarkReport,
) error {
	w, err := s.Load(ctx, implementation)
	if err != nil {
		return err
	}

	w.Insert(rep, s.window)

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}

	key := s.key(implementation)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"implementation": implementation,
		"window_size":    w.Len(),
	}).Debug("History appended")

	return nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}
