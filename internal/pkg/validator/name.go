package validator

import (
	"errors"
	"strings"
)

const maxKeyNameLength = 50

// KeyName validates an API key display name and returns the trimmed value.
// Names are required and capped at 50 characters after trimming.
func KeyName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("name is required")
	}
	if len(name) > maxKeyNameLength {
		return "", errors.New("name must be 50 characters or fewer")
	}
	return name, nil
}
