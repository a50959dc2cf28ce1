package common

import (
	"strconv"
	"strings"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// ParseBoolPtr parses an optional boolean flag. Empty or unrecognised input yields nil.
func ParseBoolPtr(value string) *bool {
	var out bool
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		out = true
	case "0", "f", "false", "no", "off":
		out = false
	default:
		return nil
	}
	return &out
}
