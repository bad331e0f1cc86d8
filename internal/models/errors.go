package models

import (
	"fmt"
	"strings"
)

// ValidationError reports missing or malformed request input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Missing builds a ValidationError naming every empty field.
func Missing(fields ...string) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf("missing required fields: %s", strings.Join(fields, ", "))}
}

// RequireFields returns a ValidationError for every pair whose value is
// empty. Pairs are name, value, name, value...
func RequireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return Missing(missing...)
	}
	return nil
}
