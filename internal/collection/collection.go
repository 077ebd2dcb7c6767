// Package collection derives the storage address of an ingested page from its URL.
package collection

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

const (
	// Prefix namespaces every collection created by this service.
	Prefix = "webchat_"

	digestLen = 12
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Normalize canonicalizes a user supplied URL: surrounding whitespace and trailing
// slashes are removed and https:// is assumed when no http(s) scheme is given.
func Normalize(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Name returns the collection id for an already normalized URL.
//
// The host (with port) is flattened to [a-zA-Z0-9_] and suffixed with the first
// 12 hex characters of the SHA-256 of the full URL, so paths on the same host
// land in different collections.
func Name(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	digest := hex.EncodeToString(sum[:])[:digestLen]
	return Prefix + nonAlnum.ReplaceAllString(host(normalizedURL), "_") + "_" + digest
}

// Resolve normalizes raw and returns the normalized URL with its collection id.
func Resolve(raw string) (normalizedURL, name string) {
	normalizedURL = Normalize(raw)
	return normalizedURL, Name(normalizedURL)
}

func host(normalizedURL string) string {
	if u, err := url.Parse(normalizedURL); err == nil && u.Host != "" {
		return u.Host
	}
	// Unparseable input still has to produce a stable name.
	rest := normalizedURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
