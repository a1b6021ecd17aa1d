// Package s3 provides a kv.Store backed by an S3 bucket. Each key is one
// object; segments are path-escaped and joined with "/" below an optional
// key prefix. Scans rely on ListObjectsV2 ordering, which is ascending by
// the encoded key. Every request passes through a circuit breaker.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objectfs/rados/internal/circuit"
	"github.com/objectfs/rados/internal/kv"
)

// listPageSize is the largest page ListObjectsV2 returns.
const listPageSize = 1000

// Stats tracks request counters for the store.
type Stats struct {
	Requests        int64     `json:"requests"`
	Errors          int64     `json:"errors"`
	BytesUploaded   int64     `json:"bytes_uploaded"`
	BytesDownloaded int64     `json:"bytes_downloaded"`
	LastError       string    `json:"last_error"`
	LastErrorTime   time.Time `json:"last_error_time"`
}

// Store is a kv.Store over one bucket.
type Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// Open creates a store for cfg.Bucket.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	breakerCfg := cfg.CircuitBreaker
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, kv.ErrNotFound)
	}
	breakerCfg.OnStateChange = func(name string, from, to circuit.State) {
		logger.Warn("S3 circuit breaker state changed",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		timeout: cfg.RequestTimeout,
		breaker: circuit.New("s3:"+cfg.Bucket, breakerCfg),
		logger:  logger,
	}, nil
}

// encodeKey maps a kv.Key to an object key.
func (s *Store) encodeKey(k kv.Key) string {
	parts := make([]string, len(k))
	for i, seg := range k {
		parts[i] = url.PathEscape(seg)
	}
	return s.prefix + strings.Join(parts, "/")
}

func (s *Store) encodePrefix(k kv.Key) string {
	if len(k) == 0 {
		return s.prefix
	}
	return s.encodeKey(k) + "/"
}

func (s *Store) decodeKey(objectKey string) (kv.Key, error) {
	rest := strings.TrimPrefix(objectKey, s.prefix)
	parts := strings.Split(rest, "/")
	k := make(kv.Key, len(parts))
	for i, p := range parts {
		seg, err := url.PathUnescape(p)
		if err != nil {
			return nil, fmt.Errorf("decoding object key %q: %w", objectKey, err)
		}
		k[i] = seg
	}
	return k, nil
}

// do runs fn under the breaker with the per-request timeout.
func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return kv.ErrClosed
	}
	s.stats.Requests++
	s.mu.Unlock()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return fn(ctx)
	})
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.recordError(err)
		s.logger.Debug("S3 request failed", "operation", op, "error", err)
	}
	return err
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Errors++
	s.stats.LastError = err.Error()
	s.stats.LastErrorTime = time.Now()
}

func (s *Store) Get(ctx context.Context, key kv.Key) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "GetObject", func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.encodeKey(key)),
		})
		if err != nil {
			return translateError(err, "GetObject", key)
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats.BytesDownloaded += int64(len(data))
	s.mu.Unlock()
	return data, nil
}

func (s *Store) Put(ctx context.Context, key kv.Key, value []byte) error {
	err := s.do(ctx, "PutObject", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.encodeKey(key)),
			Body:          bytes.NewReader(value),
			ContentLength: aws.Int64(int64(len(value))),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil {
			return translateError(err, "PutObject", key)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.BytesUploaded += int64(len(value))
	s.mu.Unlock()
	return nil
}

// Delete removes key. S3 deletes are idempotent, so existence is checked
// with HeadObject first.
func (s *Store) Delete(ctx context.Context, key kv.Key) error {
	objectKey := s.encodeKey(key)
	return s.do(ctx, "DeleteObject", func(ctx context.Context) error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return translateError(err, "HeadObject", key)
		}
		_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return translateError(err, "DeleteObject", key)
		}
		return nil
	})
}

func (s *Store) Scan(ctx context.Context, prefix kv.Key, startAfter kv.Key, limit int) ([]kv.Entry, error) {
	listPrefix := s.encodePrefix(prefix)
	var after *string
	if startAfter != nil {
		after = aws.String(s.encodeKey(startAfter))
	}

	var keys []string
	var token *string
	for {
		pageSize := listPageSize
		if limit > 0 && limit-len(keys) < pageSize {
			pageSize = limit - len(keys)
		}

		var out *s3.ListObjectsV2Output
		err := s.do(ctx, "ListObjectsV2", func(ctx context.Context) error {
			var err error
			out, err = s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(listPrefix),
				StartAfter:        after,
				ContinuationToken: token,
				MaxKeys:           aws.Int32(int32(pageSize)),
			})
			if err != nil {
				return translateError(err, "ListObjectsV2", prefix)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if limit > 0 && len(keys) >= limit {
			keys = keys[:limit]
			break
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	entries := make([]kv.Entry, 0, len(keys))
	for _, objectKey := range keys {
		k, err := s.decodeKey(objectKey)
		if err != nil {
			return nil, err
		}
		v, err := s.Get(ctx, k)
		if errors.Is(err, kv.ErrNotFound) {
			// Deleted between list and get.
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, kv.Entry{Key: k, Value: v})
	}
	return entries, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats returns a snapshot of the request counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// BreakerState reports the circuit breaker state.
func (s *Store) BreakerState() circuit.State {
	return s.breaker.State()
}

func translateError(err error, operation string, key kv.Key) error {
	if isNotFound(err) {
		return kv.ErrNotFound
	}
	return fmt.Errorf("%s failed for %s: %w", operation, key, err)
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
