package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bobarin/lessoncast/internal/logger"
)

const (
	// Upload timeout per attempt, generous for 4K lesson videos
	uploadTimeout = 180 * time.Second

	deleteTimeout = 30 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Storage is a Supabase Storage bucket client.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	log        *logger.Logger
}

func New(url, serviceKey, bucket string, log *logger.Logger) *Storage {
	if log == nil {
		log = logger.Nop()
	}
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With("component", "Storage"),
	}
}

func (s *Storage) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, strings.TrimLeft(path, "/"))
}

// Upload uploads a file to Supabase Storage with retries and exponential backoff.
// Uses PUT with Content-Length and x-upsert for reliable large file uploads.
func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	err := s.withRetry(ctx, "upload", path, uploadTimeout, func(actx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(actx, http.MethodPut, s.objectURL(path), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")
		return req, nil
	}, http.StatusOK, http.StatusCreated)
	if err != nil {
		return err
	}
	s.log.Debug("uploaded object", "path", path, "bytes", len(data))
	return nil
}

// UploadFile uploads a file from a local path
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath string, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Upload(ctx, storagePath, data, contentType)
}

// Delete removes an object. A missing object is not an error.
func (s *Storage) Delete(ctx context.Context, path string) error {
	return s.withRetry(ctx, "delete", path, deleteTimeout, func(actx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(actx, http.MethodDelete, s.objectURL(path), nil)
	}, http.StatusOK, http.StatusNoContent, http.StatusNotFound)
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, strings.TrimLeft(path, "/"))
}

// withRetry sends the request built by build until it returns one of the ok
// statuses, a non-retryable failure occurs, or the attempts run out.
func (s *Storage) withRetry(ctx context.Context, op, path string, timeout time.Duration, build func(context.Context) (*http.Request, error), ok ...int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			s.log.Warn("storage retry", "op", op, "attempt", attempt, "max", maxRetries, "path", path, "wait", delay.String())

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		// Each attempt gets its own timeout, bounded by the caller's ctx
		actx, cancel := context.WithTimeout(ctx, timeout)

		req, err := build(actx)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to %s: %w", op, err)
			if ctx.Err() == nil && isRetryableError(err) {
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		for _, code := range ok {
			if resp.StatusCode == code {
				return nil
			}
		}

		lastErr = fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, truncate(string(body), 200))

		if isRetryableStatus(resp.StatusCode) {
			continue
		}

		// Non-retryable status (400, 401, 403, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
