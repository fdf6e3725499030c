// Package shared contains common domain types, errors, events, and value
// objects used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ClassroomCode is the numeric diary code identifying one classroom in the
// remote system (e.g. "369528").
type ClassroomCode string

var classroomCodeRegex = regexp.MustCompile(`^\d{1,20}$`)

// IsValid reports whether the code is digits-only and within length bounds.
func (c ClassroomCode) IsValid() bool {
	return classroomCodeRegex.MatchString(string(c))
}

// String returns the raw code.
func (c ClassroomCode) String() string {
	return string(c)
}

// NewClassroomCode creates a validated classroom code.
func NewClassroomCode(s string) (ClassroomCode, error) {
	c := ClassroomCode(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", NewDomainError("classroom", "Validate", ErrInvalidFormat,
			"classroom code must be numeric")
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Credentials
// ═══════════════════════════════════════════════════════════════════════════

// Credential length bounds enforced at the boundary.
const (
	MinCredentialLen = 3
	MaxCredentialLen = 100
)

// Credentials carry the remote-session login pair. The password never
// appears in logs or progress events.
type Credentials struct {
	Username string
	Password string
}

// Validate checks the length bounds of both fields.
func (c Credentials) Validate() error {
	if n := len(c.Username); n < MinCredentialLen || n > MaxCredentialLen {
		return NewDomainError("credentials", "Validate", ErrInvalidInput,
			"username must be 3-100 characters")
	}
	if n := len(c.Password); n < MinCredentialLen || n > MaxCredentialLen {
		return NewDomainError("credentials", "Validate", ErrInvalidInput,
			"password must be 3-100 characters")
	}
	return nil
}

// Redacted returns a loggable representation with the password masked.
func (c Credentials) Redacted() string {
	return c.Username + ":***"
}
