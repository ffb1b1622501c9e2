package middleware

import (
	"fmt"
	"regexp"
)

// ValidatePrincipalID validates principal ID format
func ValidatePrincipalID(principal string) error {
	if principal == "" {
		return fmt.Errorf("principal ID cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 64 chars)
	pattern := `^[a-zA-Z0-9_-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, principal)
	if !matched {
		return fmt.Errorf("invalid principal ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}

	return nil
}
