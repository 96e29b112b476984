package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()

	// tableNameRegex matches the table-name grammar: 3-255 chars of
	// letters, digits, underscore, dot or hyphen.
	tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,255}$`)
)

const (
	maxAttributeNameLength = 255
	maxItemSizeBytes       = 400 * 1024
)

// ValidateStruct validates a struct based on its validation tags
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errs []string
		for _, e := range validationErrors {
			errs = append(errs, formatFieldError(e))
		}
		return fmt.Errorf(strings.Join(errs, "; "))
	}
	return err
}

// formatFieldError formats a single field validation error
func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "dive":
		return fmt.Sprintf("%s contains invalid values", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ValidateTableName enforces the table-name grammar from the data model:
// 3-255 chars matching [A-Za-z0-9_.\-], case-sensitive.
func ValidateTableName(name string) error {
	if !tableNameRegex.MatchString(name) {
		return fmt.Errorf("table name %q must be 3-255 characters matching [A-Za-z0-9_.-]", name)
	}
	return nil
}

// ValidateAttributeName enforces the 255-character attribute-name ceiling.
func ValidateAttributeName(name string) error {
	if name == "" {
		return fmt.Errorf("attribute name cannot be empty")
	}
	if length := utf8.RuneCountInString(name); length > maxAttributeNameLength {
		return fmt.Errorf("attribute name %q exceeds maximum length of %d characters", name, maxAttributeNameLength)
	}
	return nil
}

// ValidateItemSize enforces the 400 KB serialized item-size ceiling.
func ValidateItemSize(sizeBytes int) error {
	if sizeBytes > maxItemSizeBytes {
		return fmt.Errorf("item size %d bytes exceeds maximum of %d bytes", sizeBytes, maxItemSizeBytes)
	}
	return nil
}

// ValidateStringLength validates string length with UTF-8 awareness
func ValidateStringLength(s string, minLength, maxLength int) error {
	length := utf8.RuneCountInString(s)
	if length < minLength {
		return fmt.Errorf("string too short: minimum %d characters required, got %d", minLength, length)
	}
	if maxLength > 0 && length > maxLength {
		return fmt.Errorf("string too long: maximum %d characters allowed, got %d", maxLength, length)
	}
	return nil
}

// ValidateEnum checks if a value is in a list of allowed values
func ValidateEnum(value string, allowed []string, fieldName string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v", fieldName, allowed)
}
