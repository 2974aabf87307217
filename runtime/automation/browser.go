package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/httputil"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
)

// Defaults for HTTPBrowser.
const (
	DefaultRunTimeout   = 30 * time.Second
	DefaultMaxBodyBytes = 5 << 20
	DefaultUserAgent    = "hkweather/1.0 (+https://www.hko.gov.hk)"
	defaultRate         = rate.Limit(2)
	defaultBurst        = 2
)

// Run outcomes reported to metrics.
const (
	runOK         = "ok"
	runTimeout    = "timeout"
	runNavigation = "navigation"
	runExtraction = "extraction"
)

// HTTPBrowser fetches pages over HTTP and extracts recipe fields from them.
// It is safe for concurrent use.
type HTTPBrowser struct {
	client       *http.Client
	limiter      *rate.Limiter
	snapshotDir  string
	maxBodyBytes int64
	timeout      time.Duration
	userAgent    string
}

// BrowserOption configures an HTTPBrowser.
type BrowserOption func(*HTTPBrowser)

// WithHTTPClient replaces the HTTP client. Its transport is used as is.
func WithHTTPClient(c *http.Client) BrowserOption {
	return func(b *HTTPBrowser) { b.client = c }
}

// WithRateLimit bounds how often sessions may be acquired.
func WithRateLimit(r rate.Limit, burst int) BrowserOption {
	return func(b *HTTPBrowser) { b.limiter = rate.NewLimiter(r, burst) }
}

// WithSnapshotDir sets where captured pages are written. Defaults to os.TempDir().
func WithSnapshotDir(dir string) BrowserOption {
	return func(b *HTTPBrowser) { b.snapshotDir = dir }
}

// WithMaxBodyBytes caps how much of a response is read.
func WithMaxBodyBytes(n int64) BrowserOption {
	return func(b *HTTPBrowser) {
		if n > 0 {
			b.maxBodyBytes = n
		}
	}
}

// WithRunTimeout sets the timeout for recipes that do not carry one.
func WithRunTimeout(d time.Duration) BrowserOption {
	return func(b *HTTPBrowser) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) BrowserOption {
	return func(b *HTTPBrowser) { b.userAgent = ua }
}

// NewHTTPBrowser creates a backend with an instrumented HTTP client.
func NewHTTPBrowser(opts ...BrowserOption) *HTTPBrowser {
	b := &HTTPBrowser{
		client:       httputil.NewTracedHTTPClient(0),
		limiter:      rate.NewLimiter(defaultRate, defaultBurst),
		snapshotDir:  os.TempDir(),
		maxBodyBytes: DefaultMaxBodyBytes,
		timeout:      DefaultRunTimeout,
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Session is one scoped use of the browser. Close must be called on every path;
// it is idempotent.
type Session struct {
	id        string
	browser   *HTTPBrowser
	closeOnce sync.Once
}

// Acquire waits for the rate limiter and opens a session.
func (b *HTTPBrowser) Acquire(ctx context.Context) (*Session, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		// Wait fails early when the deadline would pass before a token frees up.
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	s := &Session{id: uuid.NewString(), browser: b}
	prometheus.RecordBackendSessionAcquired()
	logger.DebugContext(ctx, "Automation session acquired", "session", s.id)
	return s, nil
}

// Close releases the session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		prometheus.RecordBackendSessionReleased()
		logger.Debug("Automation session released", "session", s.id)
	})
	return nil
}

// Fetch loads targetURL and returns the response body.
func (s *Session) Fetch(ctx context.Context, targetURL string) ([]byte, string, error) {
	b := s.browser
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", classifyContext(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: %s returned HTTP %d", ErrNavigation, targetURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.maxBodyBytes+1))
	if err != nil {
		return nil, "", classifyContext(ctx, err)
	}
	if int64(len(body)) > b.maxBodyBytes {
		return nil, "", fmt.Errorf("%w: %s is larger than %d bytes", ErrNavigation, targetURL, b.maxBodyBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Run implements Backend.
func (b *HTTPBrowser) Run(ctx context.Context, recipe Recipe, targetURL string, opts RunOptions) (*Extraction, error) {
	if targetURL == "" {
		targetURL = recipe.URL
	}
	timeout := recipe.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ext, err := b.run(ctx, recipe, targetURL, opts)
	prometheus.RecordBackendRun(recipe.Name, runStatus(err), time.Since(start))
	if err != nil {
		logger.WarnContext(ctx, "Automation run failed", "recipe", recipe.Name, "url", targetURL, "error", err)
		return nil, err
	}
	logger.DebugContext(ctx, "Automation run finished",
		"recipe", recipe.Name, "fields", len(ext.Fields), "duration", time.Since(start))
	return ext, nil
}

func (b *HTTPBrowser) run(ctx context.Context, recipe Recipe, targetURL string, opts RunOptions) (*Extraction, error) {
	session, err := b.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	body, _, err := session.Fetch(ctx, targetURL)
	if err != nil {
		return nil, err
	}
	fetchedAt := time.Now()

	var fields map[string]any
	switch recipe.Mode {
	case ModeJSON:
		fields, err = SearchFields(body, recipe.Fields)
	case ModePage, "":
		var page *Page
		page, err = ParsePage(body, targetURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		fields, err = RunScript(ctx, recipe.Script, page)
	default:
		return nil, fmt.Errorf("%w: unknown recipe mode %q", ErrExtraction, recipe.Mode)
	}
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: recipe %s found no fields on %s", ErrExtraction, recipe.Name, targetURL)
	}

	ext := &Extraction{Fields: fields, URL: targetURL, FetchedAt: fetchedAt}
	if opts.Capture {
		path, err := b.saveSnapshot(recipe.Name, recipe.Mode, body)
		if err != nil {
			logger.WarnContext(ctx, "Cannot save page snapshot", "recipe", recipe.Name, "error", err)
		} else {
			ext.Snapshot = path
		}
	}
	return ext, nil
}

func (b *HTTPBrowser) saveSnapshot(name string, mode Mode, body []byte) (string, error) {
	ext := ".html"
	if mode == ModeJSON {
		ext = ".json"
	}
	if err := os.MkdirAll(b.snapshotDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(b.snapshotDir, fmt.Sprintf("%s_%s%s", name, uuid.NewString()[:8], ext))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// classifyContext maps a failed network operation to ErrTimeout when the run's
// deadline caused it and to ErrNavigation otherwise.
func classifyContext(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrNavigation, err)
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return runOK
	case errors.Is(err, ErrTimeout):
		return runTimeout
	case errors.Is(err, ErrExtraction):
		return runExtraction
	default:
		return runNavigation
	}
}
