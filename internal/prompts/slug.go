package prompts

import (
	"regexp"
	"strings"
)

// FallbackSlug names runs whose generated slug sanitizes down to nothing.
const FallbackSlug = "research_query"

const maxSlugLen = 60

var (
	invalidSlugChars = regexp.MustCompile(`[^a-z0-9_]`)
	repeatUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeSlug normalizes an LLM-generated (or user-supplied) slug into a
// safe directory name: lowercase, underscore-separated, max 60 chars. The
// same input always yields the same output.
func SanitizeSlug(raw string) string {
	slug := strings.ToLower(strings.TrimSpace(raw))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = invalidSlugChars.ReplaceAllString(slug, "")
	slug = repeatUnderscore.ReplaceAllString(slug, "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
		slug = strings.Trim(slug, "_")
	}
	if slug == "" {
		return FallbackSlug
	}
	return slug
}
