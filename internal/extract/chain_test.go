package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepscout/deepscout/internal/research"
)

func articleHTML(extra string) string {
	para := "<p>" + strings.Repeat("The consumer price index rose modestly this quarter according to the latest figures. ", 5) + "</p>"
	return fmt.Sprintf(`<html><head><title>CPI Report</title></head>
	<body %s><article><h1>CPI Report</h1>%s%s%s</article></body></html>`, extra, para, para, para)
}

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (s *stubFetcher) FetchHTML(context.Context, string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

type stubRenderer struct {
	html  string
	err   error
	calls int
}

func (s *stubRenderer) Render(context.Context, string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.html, nil
}

func TestChainExtractsStaticArticleWithReadability(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: articleHTML("")}
	chain := NewChain(fetcher, nil, Config{})

	text, method, err := chain.Extract(context.Background(), "https://example.com/cpi")
	require.NoError(t, err)
	require.Equal(t, MethodReadability, method)
	require.Contains(t, text, "consumer price index")
}

func TestChainPromotesSPAShellToHeadless(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: `<html><body><div id="root"></div></body></html>`}
	renderer := &stubRenderer{html: articleHTML("")}
	chain := NewChain(fetcher, renderer, Config{})

	text, method, err := chain.Extract(context.Background(), "https://app.example.com")
	require.NoError(t, err)
	require.Equal(t, MethodHeadless, method)
	require.Contains(t, text, "consumer price index")
	require.Equal(t, 1, renderer.calls)
}

func TestChainFallsBackToStaticBodyWhenRendererFails(t *testing.T) {
	t.Parallel()

	// The marker forces a headless attempt, but the body is still a real
	// article the static path can handle when the browser is down.
	fetcher := &stubFetcher{body: articleHTML(`data-reactroot=""`)}
	renderer := &stubRenderer{err: errors.New("browser crashed")}
	chain := NewChain(fetcher, renderer, Config{})

	_, method, err := chain.Extract(context.Background(), "https://example.com/cpi")
	require.NoError(t, err)
	require.Equal(t, MethodReadability, method)
	require.Equal(t, 1, renderer.calls)
}

func TestChainTriesHeadlessWhenStaticFetchFails(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection refused")}
	renderer := &stubRenderer{html: articleHTML("")}
	chain := NewChain(fetcher, renderer, Config{})

	_, method, err := chain.Extract(context.Background(), "https://walled.example.com")
	require.NoError(t, err)
	require.Equal(t, MethodHeadless, method)
}

func TestChainReportsFetchFailureWhenEverythingFails(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection refused")}
	chain := NewChain(fetcher, nil, Config{})

	_, _, err := chain.Extract(context.Background(), "https://down.example.com")
	require.ErrorIs(t, err, research.ErrFetchFailed)
	require.Contains(t, err.Error(), "connection refused")
}

func TestChainFailsOnScriptOnlyDocument(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: `<html><body><script>render()</script></body></html>`}
	chain := NewChain(fetcher, nil, Config{})

	_, _, err := chain.Extract(context.Background(), "https://shell.example.com")
	require.ErrorIs(t, err, research.ErrFetchFailed)
}

func TestChainTruncatesLongContent(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: articleHTML("")}
	chain := NewChain(fetcher, nil, Config{MaxChars: 100})

	text, _, err := chain.Extract(context.Background(), "https://example.com/cpi")
	require.NoError(t, err)
	require.LessOrEqual(t, len(text), 100)
}

func TestPageFetcherFetchesBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.UserAgent())
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	f := NewPageFetcher(FetcherConfig{Timeout: 5 * time.Second})
	body, err := f.FetchHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "hello")
}

func TestPageFetcherReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewPageFetcher(FetcherConfig{Timeout: 5 * time.Second})
	_, err := f.FetchHTML(context.Background(), srv.URL)
	require.Error(t, err)
}
