package enroll

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultEmailDomain is the domain of derived student emails.
const DefaultEmailDomain = "student.pnl.ac.id"

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	nameCharsRegex  = regexp.MustCompile(`[^a-z0-9_]`)
	nonDigitRegex   = regexp.MustCompile(`[^0-9]`)

	minPasswordLen = 6
	passwordSuffix = "pnl"

	randomFunc = func(n int) string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:n] } // mockable
)

// DeriveEmail returns the login email of a student: the lowercased name with
// underscores for whitespace, then the last 3 digits of the ID number
// (zero-padded), at domain. The same inputs always yield the same email.
func DeriveEmail(name, idNumber, domain string) string {
	if domain = strings.TrimSpace(domain); domain == "" {
		domain = DefaultEmailDomain
	}
	local := strings.ToLower(strings.TrimSpace(name))
	local = whitespaceRegex.ReplaceAllString(local, "_")
	local = nameCharsRegex.ReplaceAllString(local, "")

	digits := nonDigitRegex.ReplaceAllString(idNumber, "")
	if len(digits) > 3 {
		digits = digits[len(digits)-3:]
	}
	digits = strings.Repeat("0", 3-len(digits)) + digits

	return local + digits + "@" + strings.ToLower(domain)
}

// DeriveDefaultPassword returns the ID number when it is long enough to be a password,
// else the ID number padded with a fixed suffix and random characters.
// The student is expected to change it.
func DeriveDefaultPassword(idNumber string) string {
	idNumber = strings.TrimSpace(idNumber)
	if len(idNumber) >= minPasswordLen {
		return idNumber
	}
	return idNumber + passwordSuffix + randomFunc(4)
}
