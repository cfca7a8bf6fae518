package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/esg-pipeline/internal/resilience"
)

// HTTPOptions configures the HTTP blob source.
type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond bounds the request rate. Default: 10.
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
}

// HTTPSource fetches blobs with GET <base>/<bucket>/<key>, retrying transient failures.
type HTTPSource struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPSource creates an HTTPSource with the given options.
func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "esg-pipeline/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &HTTPSource{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), int(opts.RequestsPerSecond)+1),
	}
}

// Get downloads bucket/key.
func (s *HTTPSource) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	p, err := objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	rawURL := s.opts.BaseURL + "/" + strings.Join(segments, "/")

	retry := s.opts.Retry
	retry.OnRetry = resilience.RetryLogger("fetcher.http", "get")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return s.get(ctx, rawURL)
	})
}

func (s *HTTPSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	zap.L().Debug("http: fetching blob", zap.String("url", rawURL))
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(ErrNotFound, "http: %s", rawURL)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("http: status %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	default:
		return nil, eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "http: read body %s", rawURL)
	}
	return data, nil
}
