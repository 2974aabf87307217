package automation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const currentPage = `<html><head><title>Current Weather Report</title></head>
<body>
<div id="content">
<p>Bulletin updated at 09:02 HKT 01/May/2025</p>
<p>Air temperature : 28 degrees Celsius</p>
<p>Relative Humidity : 80 per cent</p>
<script>var ignored = "Air temperature : 99";</script>
</div>
</body></html>`

const currentScript = `
function extract(page) {
  var out = {};
  var t = page.text.match(/Air temperature\s*:\s*(\d+)/);
  if (t) { out.temperature = t[1] + " degrees Celsius"; }
  var h = page.text.match(/Relative Humidity\s*:\s*(\d+)/);
  if (h) { out.humidity = h[1] + " per cent"; }
  out.title = page.title;
  return out;
}`

func newTestBrowser(t *testing.T, opts ...BrowserOption) *HTTPBrowser {
	t.Helper()
	base := []BrowserOption{WithRateLimit(rate.Inf, 1), WithSnapshotDir(t.TempDir())}
	return NewHTTPBrowser(append(base, opts...)...)
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBrowser_PageRecipe(t *testing.T) {
	var ua string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(currentPage))
	})
	b := newTestBrowser(t)

	ext, err := b.Run(context.Background(), Recipe{Name: "current", Mode: ModePage, Script: currentScript}, srv.URL, RunOptions{Capture: true})
	require.NoError(t, err)

	assert.Equal(t, "28 degrees Celsius", ext.Fields["temperature"])
	assert.Equal(t, "80 per cent", ext.Fields["humidity"])
	assert.Equal(t, "Current Weather Report", ext.Fields["title"])
	assert.Equal(t, srv.URL, ext.URL)
	assert.False(t, ext.FetchedAt.IsZero())
	assert.Equal(t, DefaultUserAgent, ua)

	require.NotEmpty(t, ext.Snapshot)
	assert.True(t, strings.HasPrefix(filepath.Base(ext.Snapshot), "current_"))
	assert.Equal(t, ".html", filepath.Ext(ext.Snapshot))
	saved, err := os.ReadFile(ext.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, currentPage, string(saved))
}

func TestHTTPBrowser_UsesRecipeURLAndSkipsCapture(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(currentPage))
	})
	b := newTestBrowser(t)

	ext, err := b.Run(context.Background(), Recipe{Name: "current", URL: srv.URL, Script: currentScript}, "", RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, ext.Snapshot)
	assert.Equal(t, srv.URL, ext.URL)
}

func TestHTTPBrowser_JSONRecipe(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature":{"data":[{"place":"King's Park","value":27},{"place":"Sha Tin","value":29}]},"humidity":{"data":[{"value":81}]}}`))
	})
	b := newTestBrowser(t)

	recipe := Recipe{
		Name: "current-api",
		Mode: ModeJSON,
		Fields: map[string]string{
			"temperature": "temperature.data[?place=='Sha Tin'].value | [0]",
			"humidity":    "humidity.data[0].value",
			"uv_index":    "uvindex.data[0].value",
		},
	}
	ext, err := b.Run(context.Background(), recipe, srv.URL, RunOptions{Capture: true})
	require.NoError(t, err)
	assert.Equal(t, float64(29), ext.Fields["temperature"])
	assert.Equal(t, float64(81), ext.Fields["humidity"])
	assert.NotContains(t, ext.Fields, "uv_index")
	assert.Equal(t, ".json", filepath.Ext(ext.Snapshot))
}

func TestHTTPBrowser_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		recipe  Recipe
		want    error
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			recipe:  Recipe{Name: "current", Script: currentScript},
			want:    ErrNavigation,
		},
		{
			name: "slow page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			recipe: Recipe{Name: "current", Script: currentScript, Timeout: 50 * time.Millisecond},
			want:   ErrTimeout,
		},
		{
			name: "layout changed",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html><body>Maintenance</body></html>`))
			},
			recipe: Recipe{Name: "current", Script: `function extract(page) { return {}; }`},
			want:   ErrExtraction,
		},
		{
			name:    "script error",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(currentPage)) },
			recipe:  Recipe{Name: "current", Script: `function extract(page) { return page.missing.field; }`},
			want:    ErrExtraction,
		},
		{
			name:    "runaway script",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(currentPage)) },
			recipe:  Recipe{Name: "current", Script: `function extract(page) { while (true) {} }`, Timeout: 100 * time.Millisecond},
			want:    ErrTimeout,
		},
		{
			name:    "unknown mode",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(currentPage)) },
			recipe:  Recipe{Name: "current", Mode: "pdf"},
			want:    ErrExtraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.handler)
			b := newTestBrowser(t)

			ext, err := b.Run(context.Background(), tt.recipe, srv.URL, RunOptions{Capture: true})
			require.Error(t, err)
			assert.Nil(t, ext)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPBrowser_BodyCap(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	})
	b := newTestBrowser(t, WithMaxBodyBytes(1024))

	_, err := b.Run(context.Background(), Recipe{Name: "big", Script: currentScript}, srv.URL, RunOptions{})
	assert.ErrorIs(t, err, ErrNavigation)
}

func TestHTTPBrowser_UnreachableHost(t *testing.T) {
	b := newTestBrowser(t)
	_, err := b.Run(context.Background(), Recipe{Name: "current", Script: currentScript}, "http://127.0.0.1:1/", RunOptions{})
	assert.ErrorIs(t, err, ErrNavigation)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	b := newTestBrowser(t)
	s, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestAcquire_RateLimitPastDeadline(t *testing.T) {
	b := NewHTTPBrowser(WithRateLimit(rate.Every(time.Hour), 1))
	_, err := b.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}
