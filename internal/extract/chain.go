// Package extract turns a URL into LLM-ready text. A chain of extraction
// variants is tried in order; the first one that yields usable text wins and
// its name is reported as the extraction method.
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/research"
)

// Method names reported by the chain.
const (
	MethodHeadless    = "headless"
	MethodReadability = "readability"
	MethodMarkup      = "markup"
)

// htmlFetcher retrieves the raw document for a URL without executing scripts.
type htmlFetcher interface {
	FetchHTML(ctx context.Context, url string) ([]byte, error)
}

// Renderer produces the DOM of a page after scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Config controls the extraction chain.
type Config struct {
	// MaxChars truncates extracted text (default 10000).
	MaxChars int
	Logger   *zap.Logger
}

// Chain implements research.Extractor. The static document is fetched once;
// when it looks script-rendered and a renderer is available, the headless
// variant runs first, otherwise readability and then a plain markup strip are
// tried against the static body.
type Chain struct {
	fetcher   htmlFetcher
	renderer  Renderer
	heuristic *Heuristic
	maxChars  int
	logger    *zap.Logger
}

// NewChain constructs the extraction chain. renderer may be nil when no
// browser is available; the chain then never reports the headless method.
func NewChain(fetcher htmlFetcher, renderer Renderer, cfg Config) *Chain {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Chain{
		fetcher:   fetcher,
		renderer:  renderer,
		heuristic: NewHeuristic(0),
		maxChars:  cfg.MaxChars,
		logger:    cfg.Logger,
	}
}

var _ research.Extractor = (*Chain)(nil)

// Extract resolves url to text and the variant that produced it.
func (c *Chain) Extract(ctx context.Context, url string) (string, string, error) {
	var attempts []string

	body, fetchErr := c.fetcher.FetchHTML(ctx, url)
	if fetchErr != nil {
		attempts = append(attempts, fmt.Sprintf("http: %v", fetchErr))
		// The static fetch can fail on pages a browser still loads fine
		// (aggressive bot walls, protocol quirks), so the renderer gets a
		// shot before giving up.
		if text, err := c.renderAndExtract(ctx, url); err == nil {
			return text, MethodHeadless, nil
		} else if c.renderer != nil {
			attempts = append(attempts, fmt.Sprintf("headless: %v", err))
		}
		return "", "", fmt.Errorf("%w: %s: %s", research.ErrFetchFailed, url, strings.Join(attempts, "; "))
	}

	if c.renderer != nil && c.heuristic.NeedsRendering(body) {
		text, err := c.renderAndExtract(ctx, url)
		if err == nil {
			return text, MethodHeadless, nil
		}
		attempts = append(attempts, fmt.Sprintf("headless: %v", err))
		c.logger.Debug("headless extraction failed, falling back to static body",
			zap.String("url", url), zap.Error(err))
	}

	if text, err := c.fromBody(body, url); err == nil {
		return text, MethodReadability, nil
	} else {
		attempts = append(attempts, fmt.Sprintf("readability: %v", err))
	}

	if text, err := fromMarkup(body); err == nil {
		return c.truncate(text), MethodMarkup, nil
	} else {
		attempts = append(attempts, fmt.Sprintf("markup: %v", err))
	}

	return "", "", fmt.Errorf("%w: %s: %s", research.ErrFetchFailed, url, strings.Join(attempts, "; "))
}

// renderAndExtract runs the headless renderer and distills its DOM, first
// through readability and then through the markup strip.
func (c *Chain) renderAndExtract(ctx context.Context, url string) (string, error) {
	if c.renderer == nil {
		return "", fmt.Errorf("no renderer configured")
	}
	html, err := c.renderer.Render(ctx, url)
	if err != nil {
		return "", err
	}
	if text, err := c.fromBody([]byte(html), url); err == nil {
		return text, nil
	}
	text, err := fromMarkup([]byte(html))
	if err != nil {
		return "", err
	}
	return c.truncate(text), nil
}

func (c *Chain) fromBody(body []byte, url string) (string, error) {
	text, err := fromReadability(body, url)
	if err != nil {
		return "", err
	}
	return c.truncate(text), nil
}

func (c *Chain) truncate(text string) string {
	if len(text) > c.maxChars {
		return text[:c.maxChars]
	}
	return text
}
