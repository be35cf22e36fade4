package identity

import (
	"regexp"
	"strings"
)

// One @, restricted local part, letters-only TLD of 2-7 characters.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,7}$`)

// ValidEmail reports whether email passes the accepted address format.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// NormalizeEmail lower-cases and trims an address for use as a mapping key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OrganizationFromEmail extracts a tenant name hint from the address domain,
// e.g. "alice@coromandel.com" yields "coromandel". Used only to pre-fill the
// assignment flow; it never feeds resolution directly.
func OrganizationFromEmail(email string) string {
	email = strings.TrimSpace(email)
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return ""
	}
	name, _, _ := strings.Cut(domain, ".")
	return strings.ToLower(name)
}
