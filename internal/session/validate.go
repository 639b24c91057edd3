package session

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/taskdeck/internal/apierr"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidatePassword enforces the service's password policy: at least eight
// characters with an upper-case letter, a lower-case letter and a digit.
func ValidatePassword(password string) string {
	if len(password) < 8 {
		return "Password must be at least 8 characters long"
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case !upper:
		return "Password must contain at least one uppercase letter"
	case !lower:
		return "Password must contain at least one lowercase letter"
	case !digit:
		return "Password must contain at least one number"
	}
	return ""
}

// Validate checks a registration before it is sent. The returned error, if
// any, is a ValidationRejected *apierr.Error with per-field messages.
func (r Registration) Validate() error {
	fields := make(map[string][]string)
	if strings.TrimSpace(r.Username) == "" {
		fields["username"] = []string{"Username is required"}
	}
	if !emailPattern.MatchString(r.Email) {
		fields["email"] = []string{"Enter a valid email address"}
	}
	if msg := ValidatePassword(r.Password); msg != "" {
		fields["password"] = []string{msg}
	}
	if !r.Role.Valid() {
		fields["role"] = []string{"Role must be developer, manager or auditor"}
	}
	if len(fields) == 0 {
		return nil
	}
	e := apierr.New(apierr.ValidationRejected, "registration is invalid")
	e.Fields = fields
	return e
}
