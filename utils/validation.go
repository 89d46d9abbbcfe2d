// utils/validation.go
package utils

import (
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// CleanPhone strips the separators people type into phone numbers.
func CleanPhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)
}

// ValidatePhone checks if a phone number is in a valid international format
func ValidatePhone(phone string) bool {
	// Allows + prefix followed by up to 15 digits
	return phonePattern.MatchString(CleanPhone(phone))
}

// IsE164 reports whether phone carries an explicit country prefix, which is
// what WhatsApp delivery requires.
func IsE164(phone string) bool {
	cleaned := CleanPhone(phone)
	return strings.HasPrefix(cleaned, "+") && phonePattern.MatchString(cleaned)
}
