// Package amazon recognises supported Amazon product URLs.
package amazon

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrUnsupportedURL is returned for anything that is not a product page on a
// known marketplace.
var ErrUnsupportedURL = errors.New("please open an Amazon product page")

const shortlinkHost = "amzn.to"

var (
	productPath = regexp.MustCompile(`/(?:dp|gp/product)/([A-Za-z0-9]{10})(?:[/?#]|$)`)
	marketplace = regexp.MustCompile(`^(?:[a-z0-9-]+\.)*amazon\.(?:[a-z]{2,3}|com?\.[a-z]{2})$`)
)

// ParseProductURL validates raw and returns the upper-cased ASIN it points at.
func ParseProductURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", ErrUnsupportedURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrUnsupportedURL
	}

	host := strings.ToLower(u.Hostname())
	if host != shortlinkHost && !marketplace.MatchString(host) {
		return "", ErrUnsupportedURL
	}

	m := productPath.FindStringSubmatch(u.EscapedPath())
	if m == nil {
		return "", ErrUnsupportedURL
	}
	return strings.ToUpper(m[1]), nil
}

// IsProductURL reports whether raw is a supported product URL.
func IsProductURL(raw string) bool {
	_, err := ParseProductURL(raw)
	return err == nil
}

// ExtractASIN pulls an ASIN out of any URL-ish string without checking the
// host. The overlay uses it on the page it is injected into.
func ExtractASIN(raw string) (string, bool) {
	m := productPath.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

var urlInText = regexp.MustCompile(`https?://\S+`)

// FindProductURL returns the first supported product URL in free text.
func FindProductURL(text string) (string, bool) {
	for _, candidate := range urlInText.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ").,!>")
		if IsProductURL(candidate) {
			return candidate, true
		}
	}
	return "", false
}
