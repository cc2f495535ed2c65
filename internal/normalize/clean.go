package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RFC 5321 upper bound for an email address.
const emailMaxLength = 254

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

var titleCaser = cases.Title(language.English)

// ValidateEmail reports whether s looks like a deliverable address:
// local-part, "@", domain with at least one dot, at most 254 chars.
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > emailMaxLength {
		return false
	}
	return emailPattern.MatchString(s)
}

// ExtractDomain reduces a URL-ish value to a bare lowercase domain:
// "https://www.Example.com/path" -> "example.com". Returns "" when the
// value cannot be parsed as a host.
func ExtractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	domain := parsed.Host
	if domain == "" {
		domain = parsed.Path
	}
	domain = strings.TrimPrefix(domain, "www.")
	return strings.ToLower(domain)
}

// NormalizeCompanyName trims, collapses internal whitespace, and title-cases.
func NormalizeCompanyName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

// CleanPhoneNumber strips everything but digits and a leading plus.
func CleanPhoneNumber(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
