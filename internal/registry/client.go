package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bilusteknoloji/pipg/internal/registry/cache"
)

const (
	maxRetries    = 3
	clientTimeout = 30 * time.Second
)

// Client is the registry's Simple Repository API surface, plus the two
// fallback index kinds it also speaks: the teacher's original
// pypi.org/pypi JSON API (LegacyDetail) and find-links flat indexes
// (FlatIndex).
type Client interface {
	SimpleIndex(ctx context.Context, idx Index) ([]IndexEntry, error)
	SimpleDetail(ctx context.Context, idx Index, project string) (*ProjectIndex, error)
	WheelMetadata(ctx context.Context, idx Index, file File) ([]byte, error)
	LegacyDetail(ctx context.Context, idx Index, project string) (*ProjectIndex, error)
	FlatIndex(ctx context.Context, idx Index, project string) (*ProjectIndex, error)
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache sets the revalidating envelope cache.
func WithCache(c *cache.Store) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCachePolicy sets the revalidation policy (Online/Offline/Override).
func WithCachePolicy(p cache.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithConcurrency bounds the number of simultaneous network requests the
// client will issue, independent of any per-call errgroup fan-out limit.
func WithConcurrency(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

// Service implements Client against the PEP 503/691 Simple Repository API.
type Service struct {
	httpClient *http.Client
	logger     *slog.Logger
	cache      *cache.Store
	policy     cache.Policy
	sem        *semaphore.Weighted
	flatCache  *flatIndexCache
}

var _ Client = (*Service)(nil)

// New creates a registry client.
func New(opts ...Option) *Service {
	s := &Service{
		httpClient: &http.Client{Timeout: clientTimeout},
		logger:     slog.Default(),
		policy:     cache.Online,
		sem:        semaphore.NewWeighted(8),
		flatCache:  newFlatIndexCache(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// retryableError indicates a transient error that should be retried,
// matching the teacher's internal/pypi error-classification pattern.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// get performs a cached, conditionally-revalidated, retried GET against
// url, returning the response body. bucket/objectKey identify the cache
// entry; idx.URL identifies the index for cache partitioning.
func (s *Service) get(ctx context.Context, idx Index, bucket, objectKey, url string) ([]byte, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring registry concurrency slot: %w", err)
	}
	defer s.sem.Release(1)

	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 500 * time.Millisecond
			s.logger.Debug("retrying registry request",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetching %s: %w", url, ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := s.doRequest(ctx, idx, bucket, objectKey, url)
		if err == nil {
			return body, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}

		lastErr = err
		s.logger.Debug("registry request failed",
			slog.String("url", url),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("fetching %s after %d attempts: %w", url, maxRetries, lastErr)
}

func (s *Service) doRequest(ctx context.Context, idx Index, bucket, objectKey, url string) ([]byte, error) {
	var (
		env   *cache.Envelope
		found bool
	)

	if s.cache != nil {
		env, found = s.cache.Get(bucket, idx.URL, objectKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	shouldFetch := true
	if s.cache != nil {
		shouldFetch = cache.Apply(req, env, found, s.policy)
	}

	if !shouldFetch {
		if !found {
			return nil, fmt.Errorf("%s is not in the registry cache and the cache policy is offline", url)
		}

		return env.Body, nil
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("requesting %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if found && cache.Revalidated(resp) {
		return env.Body, nil
	}

	decision := decideStatus(resp.StatusCode, idx.Capabilities)

	switch decision {
	case DecisionNotFound:
		return nil, fmt.Errorf("%s not found at %s: %w", objectKey, url, &StatusDecisionError{Decision: decision, StatusCode: resp.StatusCode, URL: url})
	case DecisionRetryable:
		return nil, &retryableError{err: &StatusDecisionError{Decision: decision, StatusCode: resp.StatusCode, URL: url}}
	case DecisionFatal:
		return nil, &StatusDecisionError{Decision: decision, StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading response from %s: %w", url, err)}
	}

	if s.cache != nil {
		newEnv := cache.Envelope{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now(),
			Body:         body,
		}

		if err := s.cache.Put(bucket, idx.URL, objectKey, newEnv); err != nil {
			s.logger.Debug("caching registry response failed", slog.String("url", url), slog.String("error", err.Error()))
		}
	}

	return body, nil
}
