package db

import "strings"

// IsUniqueViolation reports whether err looks like a Postgres unique
// constraint failure. With a constraintName it matches that specific
// constraint, otherwise any duplicate-key error qualifies. Matches on
// the message text because gorm can surface driver errors in wrappers
// that errors.As does not see through.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}
