// Package snaptron fetches splice-junction records from the Snaptron web service.
package snaptron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
)

const (
	DefaultBaseURL     = "https://snaptron.cs.jhu.edu"
	DefaultCompilation = "srav2"
	DefaultTimeout     = 30 * time.Second

	// maxErrorBody caps how much of a failed response ends up in an error.
	maxErrorBody = 512
)

// ErrUpstreamFetch is matched by every UpstreamFetchError.
var ErrUpstreamFetch = errors.New("snaptron fetch failed")

// UpstreamFetchError reports a request that did not produce a junction feed.
// StatusCode is 0 when the request never got a response.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("snaptron request %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("snaptron error %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamFetch) work.
func (e *UpstreamFetchError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

// Client queries one Snaptron compilation.
type Client struct {
	baseURL       string
	compilation   string
	httpClient    *http.Client
	skipMalformed bool
	logger        *zap.Logger
}

// NewClient creates a client for baseURL and compilation (e.g. "srav2").
// Empty arguments fall back to the defaults.
func NewClient(baseURL, compilation string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if compilation == "" {
		compilation = DefaultCompilation
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		compilation: compilation,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and debug messages.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// SetSkipMalformed makes Fetch log and drop malformed feed lines instead of failing.
func (c *Client) SetSkipMalformed(skip bool) {
	c.skipMalformed = skip
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SkipMalformed reports whether malformed feed lines are skipped.
func (c *Client) SkipMalformed() bool {
	return c.skipMalformed
}

// Compilation returns the Snaptron compilation this client queries.
func (c *Client) Compilation() string {
	return c.compilation
}

// URL returns the query URL for l. The strand always becomes the first
// rfilter; each extra filter is appended as its own rfilter.
func (c *Client) URL(l locus.Locus, filters ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s/snaptron?regions=%s&rfilter=strand:%s",
		c.baseURL, c.compilation, l.Region(), l.Strand)
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			b.WriteString("&rfilter=")
			b.WriteString(f)
		}
	}
	return b.String()
}

// Fetch retrieves and parses the junctions overlapping l.
// An empty response body yields zero records.
func (c *Client) Fetch(ctx context.Context, l locus.Locus, filters ...string) ([]junction.Record, error) {
	url := c.URL(l, filters...)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snaptron request: %w", err)
	}

	c.logger.Debug("fetching junctions", zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamFetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if !c.skipMalformed {
		records, err := junction.ParseFeed(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parse snaptron feed for %s: %w", l, err)
		}
		return records, nil
	}

	records, err := junction.ParseFeedLenient(resp.Body, func(e *junction.MalformedRecordError) {
		c.logger.Warn("skipping malformed junction",
			zap.String("locus", l.String()),
			zap.Int("line", e.Line),
			zap.String("reason", e.Message))
	})
	if err != nil {
		return nil, fmt.Errorf("parse snaptron feed for %s: %w", l, err)
	}
	return records, nil
}
