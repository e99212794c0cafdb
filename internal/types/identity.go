package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

// idLength is the number of hex characters kept from the SHA-256 digest.
const idLength = 16

// trackingParams are stripped during normalization; they never change page content.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"msclkid":      {},
	"ref":          {},
}

var errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")

// NormalizeURL maps equivalent URLs onto one string: lowercase host,
// http upgraded to https, default port, fragment and tracking parameters
// dropped, query sorted, path cleaned.
func NormalizeURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("normalize url: empty input")
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errMissingSchemeOrHost
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(port == "80" && scheme == "http") && port != "443" {
		host += ":" + port
	}

	u.Scheme = "https"
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = cleanQuery(u.Query())

	if u.Path == "" || u.Path == "/" {
		u.Path = "/"
	} else {
		u.Path = strings.TrimRight(path.Clean(u.Path), "/")
	}
	u.RawPath = ""

	return u.String(), nil
}

func cleanQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, skip := trackingParams[strings.ToLower(k)]; !skip {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// ContentID returns the stable identity for a URL.
func ContentID(rawURL string) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	return digest(normalized), nil
}

// TextID returns the identity for content that has no source URL.
func TextID(text string) string {
	return digest("text:" + strings.TrimSpace(text))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Host returns the lowercase hostname of a URL, or "" when it has none.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
