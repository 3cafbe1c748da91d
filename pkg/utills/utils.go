package utils

import "unicode/utf8"

// MinPasswordLength applies to admin console passwords.
const MinPasswordLength = 8

// HasLetter returns true if s contains at least one ASCII letter (a-zA-Z)
func HasLetter(s string) bool {
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			return true
		}
	}
	return false
}

// HasNumber returns true if s contains at least one ASCII digit (0-9)
func HasNumber(s string) bool {
	for _, r := range s {
		if '0' <= r && r <= '9' {
			return true
		}
	}
	return false
}

// ValidPassword requires MinPasswordLength characters with at least one
// letter and one digit.
func ValidPassword(s string) bool {
	return utf8.RuneCountInString(s) >= MinPasswordLength && HasLetter(s) && HasNumber(s)
}

// ClampPage normalizes offset/limit query values for list endpoints.
func ClampPage(offset, limit, maxLimit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}
