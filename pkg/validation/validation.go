package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// ClientIDRegex validates client ID format
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParamKeyRegex validates parameter key format (dot paths allowed)
	ParamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)
)

// ValidateClientID validates a client identity token.
func ValidateClientID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("client id is required")
	}
	if len(id) > 100 {
		return fmt.Errorf("client id is too long (max 100 characters)")
	}
	if !ClientIDRegex.MatchString(id) {
		return fmt.Errorf("client id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateParamKey validates a synth parameter key.
func ValidateParamKey(key string) error {
	if key == "" {
		return fmt.Errorf("parameter key is required")
	}
	if len(key) > 200 {
		return fmt.Errorf("parameter key is too long (max 200 characters)")
	}
	if !ParamKeyRegex.MatchString(key) {
		return fmt.Errorf("parameter key contains invalid characters")
	}
	return nil
}

// ValidateBankIndex validates a state bank slot index.
func ValidateBankIndex(index int) error {
	if index < 0 {
		return fmt.Errorf("bank index must be >= 0")
	}
	if index > 127 {
		return fmt.Errorf("bank index is too large (max 127)")
	}
	return nil
}
