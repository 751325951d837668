// Package urlhash provides the URL normalization and hashing used to address
// cache entries.
package urlhash

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Hasher implements research.Hasher using SHA-256 of the normalized URL.
type Hasher struct{}

// New returns a URL hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash normalizes the URL and returns the hex SHA-256 digest. The same URL
// always hashes identically regardless of case in scheme/host, fragments, or
// a trailing slash.
func (h *Hasher) Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Normalize produces the canonical form of a URL for cache addressing.
// Unparseable inputs are returned trimmed so they still hash deterministically.
func Normalize(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}
