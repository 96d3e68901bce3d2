package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/assistauth/internal/apperr"
	"github.com/dmitrijs2005/assistauth/internal/cryptox"
)

const (
	maxEmailLen    = 254
	maxNameLen     = 100
	maxLocationLen = 100
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

// ValidEmail reports whether email looks like an address. It expects a
// normalized value.
func ValidEmail(email string) bool {
	return len(email) <= maxEmailLen && emailRe.MatchString(email)
}

func validationError(details map[string]string) *apperr.Error {
	return apperr.BadRequest("validation failed").WithDetails(details)
}

func (s *UserService) validateRegistration(in RegisterInput) error {
	details := map[string]string{}

	if !ValidEmail(in.Email) {
		details["email"] = "must be a valid email address"
	}
	if msg := s.passwordProblem(in.Password); msg != "" {
		details["password"] = msg
	}
	if n := utf8.RuneCountInString(in.Name); n == 0 || n > maxNameLen {
		details["name"] = fmt.Sprintf("must be 1 to %d characters", maxNameLen)
	}
	if utf8.RuneCountInString(in.Country) > maxLocationLen {
		details["country"] = fmt.Sprintf("must be at most %d characters", maxLocationLen)
	}
	if utf8.RuneCountInString(in.City) > maxLocationLen {
		details["city"] = fmt.Sprintf("must be at most %d characters", maxLocationLen)
	}

	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// passwordProblem describes why password fails the policy, or returns "".
func (s *UserService) passwordProblem(password string) string {
	if utf8.RuneCountInString(password) < s.minPassword {
		return fmt.Sprintf("must be at least %d characters", s.minPassword)
	}
	if len(password) > cryptox.MaxPasswordBytes {
		return fmt.Sprintf("must be at most %d bytes", cryptox.MaxPasswordBytes)
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
	if !upper || !lower || !digit {
		return "must contain an upper-case letter, a lower-case letter and a digit"
	}
	return ""
}
