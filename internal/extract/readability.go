package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// fromReadability distills the main article from a document. It fails when
// the parser cannot find meaningful content, letting the chain fall through.
func fromReadability(body []byte, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("readability found no article content")
	}

	if title := strings.TrimSpace(article.Title); title != "" {
		return "# " + title + "\n\n" + text, nil
	}
	return text, nil
}
