package validator

import (
	"fmt"

	"github.com/MagicHoovy/Steve/models"
)

// ValidationError tells why a document was discarded; Field is set when a
// required key is missing
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("missing required field: %s", e.Field)
	}
	return e.Reason
}

// Validate checks that v is a JSON object holding every required key. The
// document itself is returned untouched.
func Validate(v interface{}, required []string) (models.Document, error) {
	var doc models.Document
	switch d := v.(type) {
	case models.Document:
		doc = d
	case map[string]interface{}:
		doc = d
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("data is not an object: %T", v)}
	}
	if doc == nil {
		return nil, &ValidationError{Reason: "data is empty"}
	}
	for _, field := range required {
		if !doc.Has(field) {
			return nil, &ValidationError{Field: field}
		}
	}
	return doc, nil
}
