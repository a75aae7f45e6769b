package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Identity Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// CompanionID identifies one companion instance. It is either a UUID or a
// lowercase slug chosen by the game session (e.g. "aiko-main").
type CompanionID string

var companionIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// IsValid checks if the companion ID is a UUID or a slug.
func (c CompanionID) IsValid() bool {
	return companionIDRegex.MatchString(string(c))
}

// String returns the string representation.
func (c CompanionID) String() string {
	return string(c)
}

// IsEmpty checks if the ID is empty.
func (c CompanionID) IsEmpty() bool {
	return c == ""
}

// NewCompanionID creates a new CompanionID with validation.
func NewCompanionID(id string) (CompanionID, error) {
	cid := CompanionID(strings.ToLower(strings.TrimSpace(id)))
	if cid.IsEmpty() {
		return "", NewDomainError("shared", "NewCompanionID", ErrEmptyValue, "companion ID is required")
	}
	if !cid.IsValid() {
		return "", NewDomainError("shared", "NewCompanionID", ErrInvalidID, "invalid companion ID format")
	}
	return cid, nil
}
