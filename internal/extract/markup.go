package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fromMarkup is the last-resort variant: strip non-content elements and
// return whatever visible text remains, one line per text block.
func fromMarkup(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg, head").Remove()

	root := doc.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body
	}

	var lines []string
	for _, line := range strings.Split(root.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("no visible text in document")
	}
	return strings.Join(lines, "\n"), nil
}
