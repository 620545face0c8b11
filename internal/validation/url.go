package validation

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// URLValidator checks the feed and site URLs of news sources.
type URLValidator struct {
	// AllowPrivate permits localhost and private addresses, for tests and
	// self-hosted feeds.
	AllowPrivate bool
	MaxLength    int
}

// NewURLValidator returns a validator that rejects local and private hosts.
func NewURLValidator() *URLValidator {
	return &URLValidator{MaxLength: 2048}
}

// NewPermissiveURLValidator allows local development hosts.
func NewPermissiveURLValidator() *URLValidator {
	return &URLValidator{AllowPrivate: true, MaxLength: 2048}
}

// ValidateAndNormalize returns the canonical form of input: https assumed
// when no scheme is given, host lower-cased, fragment dropped.
func (v *URLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if v.MaxLength > 0 && len(input) > v.MaxLength {
		return "", fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https protocol")
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("URL must have a valid hostname")
	}
	if u.User != nil {
		return "", fmt.Errorf("URL must not carry credentials")
	}

	u.Host = strings.ToLower(u.Host)
	if err := v.checkHost(u.Hostname()); err != nil {
		return "", err
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("directory traversal patterns not allowed in URL path")
	}

	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

func (v *URLValidator) checkHost(hostname string) error {
	if v.AllowPrivate {
		return nil
	}
	if isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not permitted")
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if addr, ok := netip.AddrFromSlice(ip); ok && isPrivateAddr(addr.Unmap()) {
			return fmt.Errorf("private IP addresses are not permitted")
		}
	}
	return nil
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" || strings.HasSuffix(hostname, ".localhost")
}

func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

var sourceCodeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// SourceCode validates a source slug such as "motorsport-latam".
func SourceCode(code string) error {
	if !sourceCodeRe.MatchString(code) {
		return fmt.Errorf("invalid source code %q: use lower-case letters, digits and dashes", code)
	}
	return nil
}
