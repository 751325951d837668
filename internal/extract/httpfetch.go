package extract

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls the static HTTP fetcher.
type FetcherConfig struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
}

// PageFetcher retrieves raw documents over plain HTTP. Each fetch uses a
// fresh collector so per-request state never leaks between URLs.
type PageFetcher struct {
	cfg       FetcherConfig
	transport *http.Transport
}

// NewPageFetcher creates a fetcher with sane transport defaults.
func NewPageFetcher(cfg FetcherConfig) *PageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "deepscout/1.0 (research agent)"
	}
	return &PageFetcher{cfg: cfg, transport: newHTTPTransport()}
}

// FetchHTML downloads the document at url without executing scripts.
func (f *PageFetcher) FetchHTML(ctx context.Context, url string) ([]byte, error) {
	collector := f.buildCollector()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("http status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		err := collector.Visit(url)
		collector.Wait()
		done <- err
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return body, nil
	}
}

func (f *PageFetcher) buildCollector() *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
	}
	if !f.cfg.RespectRobots {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)
	return collector
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
