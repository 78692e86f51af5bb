package constraint

import (
	"sort"
	"strings"
)

// NonFieldErrors keys validation messages that apply to the whole row
// rather than a single field.
const NonFieldErrors = "__all__"

// ValidationError reports constraint violations, keyed by field name
// where the violation maps to one field and by NonFieldErrors
// otherwise. One ValidationError can carry several violations.
type ValidationError struct {
	Errors map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Errors: make(map[string][]string)}
}

func violation(field, message string) *ValidationError {
	e := newValidationError()
	e.Errors[field] = []string{message}
	return e
}

func (e *ValidationError) merge(other *ValidationError) {
	for field, msgs := range other.Errors {
		e.Errors[field] = append(e.Errors[field], msgs...)
	}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var parts []string
	for _, f := range fields {
		for _, msg := range e.Errors[f] {
			if f == NonFieldErrors {
				parts = append(parts, msg)
				continue
			}
			parts = append(parts, f+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}
