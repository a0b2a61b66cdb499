package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
	"github.com/MrSnakeDoc/orderfiles/internal/utils"
)

const (
	msgInvalidURL  = "The URL is invalid."
	msgInvalidPath = "The path is invalid."
	msgNotFound    = "The file was not found on the server."
	msgEmpty       = "The file is empty."

	// DefaultRetries is the number of re-attempts after a transient failure.
	DefaultRetries = 3
)

var (
	ErrNotFound    = errors.New("fetcher: resource not found")
	ErrServerError = errors.New("fetcher: server error")
)

// StatusError is a non-success response that is not worth retrying.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status code %d", e.Code)
}

// Fetcher downloads file links into directories below a base directory.
type Fetcher struct {
	client  *http.Client
	baseDir string
	retry   *resilience.Retry
	logger  logger.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithRetry replaces the download retry policy. Its ShouldRetry is always
// overridden with the fetcher's transient error classification.
func WithRetry(r resilience.Retry) Option {
	return func(f *Fetcher) { f.retry = &r }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New returns a Fetcher writing only below baseDir.
func New(client *http.Client, baseDir string, opts ...Option) (*Fetcher, error) {
	if client == nil {
		client = http.DefaultClient
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	f := &Fetcher{
		client:  client,
		baseDir: absBase,
		retry: &resilience.Retry{
			Retries: DefaultRetries,
			Backoff: resilience.ExponentialBackoff(time.Second),
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.retry.ShouldRetry = isTransient
	if f.retry.OnRetry == nil {
		f.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			f.logger.Warn("download failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("next_retry_in", delay),
				logger.Error(err))
		}
	}
	return f, nil
}

// BaseDir returns the absolute directory every destination must live under.
func (f *Fetcher) BaseDir() string { return f.baseDir }

// Save downloads link into destinationPath and reports the outcome. It never
// returns an error: every failure is described by the result.
func (f *Fetcher) Save(ctx context.Context, link domain.FileLink, destinationPath string) domain.SaveResult {
	result := domain.SaveResult{
		Status:    domain.SaveNotStarted,
		OrderID:   link.OrderID,
		LocalPath: destinationPath,
		URL:       link.URL,
	}

	if !domain.IsAbsoluteHTTPURL(link.URL) {
		return result.Fail(msgInvalidURL)
	}
	if !f.contains(destinationPath) {
		return result.Fail(msgInvalidPath)
	}

	result.Status = domain.SaveInProgress

	resp, err := f.get(ctx, link.URL)
	if err != nil {
		return result.Fail(describe(err))
	}
	defer utils.Close(resp.Body)

	if resp.ContentLength == 0 {
		return result.Fail(msgEmpty)
	}

	name := UniqueFileName(suggestedFileName(resp), link.URL)
	fullPath := filepath.Join(destinationPath, name)

	n, err := writeFile(ctx, fullPath, resp.Body)
	if err != nil {
		return result.Fail(describe(err))
	}
	if n == 0 {
		return result.Fail(msgEmpty)
	}

	result.Status = domain.SaveSuccess
	result.LocalPath = fullPath
	return result
}

// contains reports whether dest resolves to baseDir or a directory below it.
func (f *Fetcher) contains(dest string) bool {
	if strings.TrimSpace(dest) == "" {
		return false
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(f.baseDir, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// get issues the GET under the retry policy and returns a response with a 2xx
// status. The caller closes the body.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response
	err := f.retry.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &terminalError{err}
		}

		r, err := f.client.Do(req)
		if err != nil {
			return err
		}

		switch {
		case r.StatusCode >= 200 && r.StatusCode < 300:
			resp = r
			return nil
		case r.StatusCode == http.StatusNotFound:
			utils.Close(r.Body)
			return ErrNotFound
		case r.StatusCode >= 500:
			utils.Close(r.Body)
			return fmt.Errorf("%w: %d %s", ErrServerError, r.StatusCode, http.StatusText(r.StatusCode))
		default:
			utils.Close(r.Body)
			return &StatusError{Code: r.StatusCode}
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// writeFile streams body into a part file next to path and renames it into
// place once complete, replacing any previous file.
func writeFile(ctx context.Context, path string, body io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	part := path + "." + uuid.NewString() + ".part"
	file, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr, ctx.Err()); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("write file: %w", err)
	}
	if n == 0 {
		_ = os.Remove(part)
		return 0, nil
	}

	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("move file into place: %w", err)
	}
	return n, nil
}

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// isTransient classifies download errors: transport failures and 5xx are
// retried, everything the server answered deliberately is not.
func isTransient(err error) bool {
	var terminal *terminalError
	var status *StatusError
	switch {
	case errors.As(err, &terminal), errors.As(err, &status), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func describe(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "Operation timed out: " + err.Error()
	default:
		return err.Error()
	}
}
