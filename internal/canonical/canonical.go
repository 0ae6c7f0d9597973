// Package canonical normalizes job and careers URLs and derives stable job keys.
package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

// ErrInvalidURL is returned for input that is not an absolute URL.
var ErrInvalidURL = errors.New("invalid url")

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// Canonicalize lowercases the host, drops tracking query parameters, and
// strips the trailing slash from the path unless the path is exactly "/".
// A run of trailing slashes is stripped as one so the result is a fixed point.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.RawQuery = stripTracking(u.RawQuery)
	u.ForceQuery = false

	// Only literal slashes are trimmed; an escaped %2F belongs to its segment.
	if escaped := u.EscapedPath(); len(escaped) > 1 && strings.HasSuffix(escaped, "/") {
		trimmed := trimSlashes(escaped)
		path, err := url.PathUnescape(trimmed)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		u.Path = path
		u.RawPath = trimmed
	}
	return u.String(), nil
}

func trimSlashes(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// stripTracking filters the raw query string pair by pair so the surviving
// parameters keep their order and encoding.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name = pair[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if _, tracked := trackingParams[strings.ToLower(name)]; tracked {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// Keyer derives job identity keys.
type Keyer struct {
	hasher ingest.Hasher
}

// NewKeyer returns a Keyer over the provided hasher.
func NewKeyer(hasher ingest.Hasher) *Keyer {
	return &Keyer{hasher: hasher}
}

// JobKey identifies a linked posting by company and canonical job URL.
func (k *Keyer) JobKey(companyID, canonicalURL string) (string, error) {
	key, err := k.hasher.Hash([]byte(companyID + canonicalURL))
	if err != nil {
		return "", fmt.Errorf("hash job key: %w", err)
	}
	return key, nil
}

// InlineJobKey identifies a posting that has no page of its own.
func (k *Keyer) InlineJobKey(companyID, canonicalCareersURL, title string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(title))
	key, err := k.hasher.Hash([]byte(companyID + canonicalCareersURL + "#" + normalized))
	if err != nil {
		return "", fmt.Errorf("hash inline job key: %w", err)
	}
	return key, nil
}
