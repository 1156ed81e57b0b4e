package plan

import (
	"fmt"
	"net/url"
	"regexp"
)

// ValidationType constrains the shape of an extracted field value.
type ValidationType string

const (
	TypeString      ValidationType = "string"
	TypeEmail       ValidationType = "email"
	TypeNumber      ValidationType = "number"
	TypeISODate     ValidationType = "iso_date"
	TypeStringArray ValidationType = "string_array"
	TypeBoolean     ValidationType = "boolean"
	TypeURL         ValidationType = "url"
	TypePhone       ValidationType = "phone"
	TypeJSONObject  ValidationType = "json_object"
)

// ValidationTypes lists every accepted validation type, in prompt order.
var ValidationTypes = []ValidationType{
	TypeString, TypeEmail, TypeNumber, TypeISODate, TypeStringArray,
	TypeBoolean, TypeURL, TypePhone, TypeJSONObject,
}

// Valid reports whether t is a known validation type.
func (t ValidationType) Valid() bool {
	for _, vt := range ValidationTypes {
		if t == vt {
			return true
		}
	}
	return false
}

var (
	emailRe   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	phoneRe   = regexp.MustCompile(`[\d\-\+\(\)\s]{7,}`)
)

// CheckValue validates a decoded JSON value against the expected type.
// JSON numbers arrive as float64, objects as map[string]any, arrays as []any.
func CheckValue(value any, expected ValidationType, field string) error {
	switch expected {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q should be string, got %T", field, value)
		}

	case TypeEmail:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q should be email string, got %T", field, value)
		}
		if !emailRe.MatchString(s) {
			return fmt.Errorf("field %q is not a valid email format", field)
		}

	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("field %q should be number, got %T", field, value)
		}

	case TypeISODate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q should be ISO date string, got %T", field, value)
		}
		if !isoDateRe.MatchString(s) {
			return fmt.Errorf("field %q is not in ISO date format (YYYY-MM-DD)", field)
		}

	case TypeStringArray:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %q should be array, got %T", field, value)
		}
		for _, item := range arr {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("field %q should be array of strings", field)
			}
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q should be boolean, got %T", field, value)
		}

	case TypeURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q should be URL string, got %T", field, value)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("field %q is not a valid URL format", field)
		}

	case TypePhone:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q should be phone string, got %T", field, value)
		}
		if !phoneRe.MatchString(s) {
			return fmt.Errorf("field %q is not a valid phone format", field)
		}

	case TypeJSONObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field %q should be object, got %T", field, value)
		}

	default:
		return fmt.Errorf("unknown validation type %q for field %q", expected, field)
	}

	return nil
}

// MatchPattern reports whether a string value matches the step's regex
// pattern. Invalid patterns and non-string values are treated as no-match
// without failing the extraction.
func MatchPattern(value any, pattern string) bool {
	if pattern == "" {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
