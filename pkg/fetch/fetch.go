package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

// userAgents is the fixed pool a random agent is picked from per request.
// Rotating agents reduces trivial fingerprinting by upstream sites.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
}

// HTTPError reports a non-2xx upstream status. The governor classifies these
// to decide on retries and platform cooldowns.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Response is a fetched page. Title is extracted when the body parses as HTML.
type Response struct {
	StatusCode int
	Body       string
	Title      string
	Length     int
}

// Client wraps a retrying HTTP client with the request shape every provider
// uses: randomized User-Agent, browser-like headers, bounded timeout.
// One Client is shared by concurrent per-platform fetches.
type Client struct {
	http *retryablehttp.Client
}

const (
	maxAttempts      = 3
	baseRetryDelay   = time.Second
	maxRetryDelay    = 30 * time.Second
	retryJitterRatio = 0.25
)

// NewClient builds a Client with the given per-request timeout. Retries
// happen only for retryable failure classes (connection errors and 5xx other
// than 503), with exponential backoff and +/-25% jitter.
func NewClient(timeout time.Duration) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = maxAttempts - 1
	rc.HTTPClient.Timeout = timeout
	rc.CheckRetry = checkRetry
	rc.Backoff = jitterBackoff
	// Surface the final response after retries run out so the status code
	// still reaches the governor as a typed error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{http: rc}
}

// checkRetry retries connection-level failures and 5xx responses. 429 and 503
// mean the upstream is pushing back, so retrying would only make it worse;
// those surface immediately for the governor to apply a cooldown.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp != nil && resp.StatusCode >= 500 && resp.StatusCode != http.StatusServiceUnavailable {
		return true, nil
	}
	return false, nil
}

func jitterBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	delay := baseRetryDelay << uint(attemptNum)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(float64(delay) * retryJitterRatio * (rand.Float64()*2 - 1))
	if delay+jitter < 0 {
		return 0
	}
	return delay + jitter
}

// Get fetches one URL and returns the body with the page title, or a typed
// error for non-2xx statuses.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	res := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Length:     utf8.RuneCountInString(string(body)),
	}
	if title, ok := htmlTitle(res.Body); ok {
		res.Title = strings.ToValidUTF8(strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(title)), "")
	}
	return res, nil
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// IsTimeout reports whether err is a timeout or cancellation at the
// transport level.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func htmlTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title, ok := findTitle(c); ok {
			return title, ok
		}
	}
	return "", false
}
