package utils

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// JSON size limits (in bytes)
const (
	MaxJSONSize       = 1 * 1024 * 1024 // 1MB - maximum JSON payload size
	MaxGridLayoutSize = 256 * 1024      // 256KB - serialized grid geometry
	MaxPropsSize      = 64 * 1024       // 64KB - sub-component props
	MaxJSONDepth      = 20
)

// String length limits
const (
	MaxIDLength     = 128
	MaxUserIDLength = 128
	MaxNameLength   = 128
)

var (
	// SafeIDPattern allows alphanumeric, hyphens, underscores
	SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	// UserIDPattern also allows dots and @ for opaque caller-supplied identities
	UserIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

	// Labels are plain text; every tag is stripped
	labelPolicy = bluemonday.StrictPolicy()
)

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if len(data) > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", len(data), v.maxSize)
	}
	return nil
}

// ValidateJSON validates size, structure and nesting depth
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}

	var js interface{}
	if err := json.Unmarshal(data, &js); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return ValidateJSONDepth(js, MaxJSONDepth)
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateGridLayout validates serialized grid geometry
func ValidateGridLayout(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := NewJSONSizeValidator(MaxGridLayoutSize).ValidateJSON(data); err != nil {
		return fmt.Errorf("grid layout validation failed: %w", err)
	}
	return nil
}

// ValidateProps validates sub-component props
func ValidateProps(props map[string]interface{}) error {
	if props == nil {
		return nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal props: %w", err)
	}
	if err := NewJSONSizeValidator(MaxPropsSize).ValidateSize(data); err != nil {
		return fmt.Errorf("props validation failed: %w", err)
	}
	return ValidateJSONDepth(props, MaxJSONDepth)
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if value == "" {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}
	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}
	return nil
}

// ValidateUserID validates an opaque caller-supplied user identifier
func ValidateUserID(userID string) error {
	if err := ValidateString(userID, "user id", 1, MaxUserIDLength, true); err != nil {
		return err
	}
	if !UserIDPattern.MatchString(userID) {
		return fmt.Errorf("user id contains invalid characters")
	}
	return nil
}

// SanitizeName strips markup and surrounding whitespace from a user-visible label
func SanitizeName(name string) string {
	// The policy escapes the text it keeps; labels are stored unescaped
	return strings.TrimSpace(html.UnescapeString(labelPolicy.Sanitize(name)))
}

// ValidateName sanitizes and validates a tab or layout label
func ValidateName(name, fieldName string) (string, error) {
	clean := SanitizeName(name)
	if err := ValidateString(clean, fieldName, 1, MaxNameLength, true); err != nil {
		return "", err
	}
	return clean, nil
}

// SameName compares labels case-insensitively
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
