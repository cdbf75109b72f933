package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// UnknownSize marks a stream whose server did not send a content length
const UnknownSize int64 = -1

// Stream is an open response body positioned at byte zero of the resource
type Stream struct {
	Body io.ReadCloser

	// Size is the content length, or UnknownSize
	Size int64

	// URL is the final location after redirects
	URL string

	// Redirects is the number of hops followed to reach URL
	Redirects int
}

// Transport opens a readable stream for a URL
type Transport interface {
	Open(ctx context.Context, url string) (*Stream, error)
}

// TransportOptions configures the HTTP transport
type TransportOptions struct {
	// ConnectTimeout bounds dialing and waiting for response headers.
	// Default: 30s
	ConnectTimeout time.Duration

	// MaxRedirects caps the redirect chain. Zero uses the default, negative disables the cap.
	// Default: 10
	MaxRedirects int

	// UserAgent is sent with every request when set
	UserAgent string

	Logger *zap.Logger
}

// DefaultTransportOptions returns options with sensible defaults
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		ConnectTimeout: 30 * time.Second,
		MaxRedirects:   10,
		UserAgent:      "ldm-go/1.0",
	}
}

var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// HTTPTransport issues GET requests and follows redirects by hand so the
// redirect policy stays under our control
type HTTPTransport struct {
	client *http.Client
	opts   TransportOptions
	logger *zap.Logger
}

// NewHTTPTransport creates a transport with the given options
func NewHTTPTransport(opts TransportOptions) *HTTPTransport {
	defaults := DefaultTransportOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = defaults.MaxRedirects
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ConnectTimeout,
		DisableCompression:    true, // byte offsets must match the raw entity
	}

	return &HTTPTransport{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts:   opts,
		logger: opts.Logger,
	}
}

// Open issues a GET against url and follows 301/302/307/308 responses that carry
// a Location header. Only a final 200 is accepted.
func (t *HTTPTransport) Open(ctx context.Context, url string) (*Stream, error) {
	current := url
	hops := 0

	for {
		resp, err := t.get(ctx, current)
		if err != nil {
			return nil, err
		}

		if redirectStatuses[resp.StatusCode] && resp.Header.Get("Location") != "" {
			next, err := resp.Location()
			drain(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve redirect from %s: %w", current, err)
			}

			hops++
			if t.opts.MaxRedirects > 0 && hops > t.opts.MaxRedirects {
				return nil, fmt.Errorf("%w: more than %d hops from %s", ErrTooManyRedirects, t.opts.MaxRedirects, url)
			}

			t.logger.Debug("Following redirect",
				zap.Int("status", resp.StatusCode),
				zap.String("from", current),
				zap.String("to", next.String()))

			current = next.String()
			continue
		}

		if resp.StatusCode != http.StatusOK {
			drain(resp.Body)
			return nil, &StatusError{URL: current, StatusCode: resp.StatusCode}
		}

		size := resp.ContentLength
		if size < 0 {
			size = UnknownSize
		}

		return &Stream{
			Body:      resp.Body,
			Size:      size,
			URL:       current,
			Redirects: hops,
		}, nil
	}
}

func (t *HTTPTransport) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if t.opts.UserAgent != "" {
		req.Header.Set("User-Agent", t.opts.UserAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return resp, nil
}

// drain discards a small remainder so the connection can be reused, then closes the body
func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4096)
	body.Close()
}
