package catalog

import (
	"fmt"
	"sort"
)

// FieldError represents a validation error for a specific prop or param
// field. Error codes are standardized:
//   - "type": value doesn't match the declared type
//   - "enum": value not in allowed enum values
//   - "min": numeric value below minimum
//   - "max": numeric value above maximum
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// checkProps validates the fields that are present against the schema.
// Validation is lenient about unknown fields (forward compatibility with
// catalog evolution) and says nothing about missing required fields; that is
// missingRequired's job, because while streaming a missing field means
// "not yet", not "wrong".
func checkProps(props map[string]any, schema PropSchema) []FieldError {
	var errs []FieldError

	fields := make([]string, 0, len(props))
	for name := range props {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, fieldName := range fields {
		propSchema, exists := schema.Properties[fieldName]
		if !exists {
			continue
		}
		value := props[fieldName]

		if err := validateType(fieldName, value, propSchema); err != nil {
			errs = append(errs, *err)
			continue // Skip further validation if type is wrong
		}

		if len(propSchema.Enum) > 0 {
			if err := validateEnum(fieldName, value, propSchema.Enum); err != nil {
				errs = append(errs, *err)
			}
		}

		if propSchema.Type == "int" || propSchema.Type == "float" {
			if propSchema.Minimum != nil {
				if err := validateMin(fieldName, value, *propSchema.Minimum); err != nil {
					errs = append(errs, *err)
				}
			}
			if propSchema.Maximum != nil {
				if err := validateMax(fieldName, value, *propSchema.Maximum); err != nil {
					errs = append(errs, *err)
				}
			}
		}
	}

	return errs
}

// missingRequired returns the required fields absent from props, sorted.
func missingRequired(props map[string]any, schema PropSchema) []string {
	var missing []string
	for _, requiredField := range schema.Required {
		if _, exists := props[requiredField]; !exists {
			missing = append(missing, requiredField)
		}
	}
	sort.Strings(missing)
	return missing
}

// validateType checks if the value matches the expected type.
func validateType(fieldName string, value any, propSchema PropertySchema) *FieldError {
	switch propSchema.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a string", fieldName),
				Code:    "type",
			}
		}
	case "int":
		// Accept both int and float64 (JSON numbers)
		switch v := value.(type) {
		case int, int32, int64:
			// Valid
		case float64:
			if v != float64(int64(v)) {
				return &FieldError{
					Field:   fieldName,
					Message: fmt.Sprintf("Field %q must be an integer", fieldName),
					Code:    "type",
				}
			}
		default:
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be an integer", fieldName),
				Code:    "type",
			}
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a boolean", fieldName),
				Code:    "type",
			}
		}
	case "float":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			// Valid
		default:
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a number", fieldName),
				Code:    "type",
			}
		}
	case "object", "action":
		if _, ok := value.(map[string]any); !ok {
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be an object", fieldName),
				Code:    "type",
			}
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return &FieldError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be an array", fieldName),
				Code:    "type",
			}
		}
	}
	return nil
}

// validateEnum checks if the value is in the allowed enum values.
func validateEnum(fieldName string, value any, enumValues []string) *FieldError {
	strValue, ok := value.(string)
	if !ok {
		return &FieldError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be a string for enum validation", fieldName),
			Code:    "type",
		}
	}

	for _, allowed := range enumValues {
		if strValue == allowed {
			return nil // Valid
		}
	}

	return &FieldError{
		Field:   fieldName,
		Message: fmt.Sprintf("Field %q must be one of: %v", fieldName, enumValues),
		Code:    "enum",
	}
}

// validateMin checks if numeric value meets minimum.
func validateMin(fieldName string, value any, min int) *FieldError {
	numValue, ok := asFloat(value)
	if !ok {
		return &FieldError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be numeric for min validation", fieldName),
			Code:    "type",
		}
	}
	if numValue < float64(min) {
		return &FieldError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be >= %d", fieldName, min),
			Code:    "min",
		}
	}
	return nil
}

// validateMax checks if numeric value meets maximum.
func validateMax(fieldName string, value any, max int) *FieldError {
	numValue, ok := asFloat(value)
	if !ok {
		return &FieldError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be numeric for max validation", fieldName),
			Code:    "type",
		}
	}
	if numValue > float64(max) {
		return &FieldError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be <= %d", fieldName, max),
			Code:    "max",
		}
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
