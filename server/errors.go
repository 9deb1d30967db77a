package server

import "fmt"

// MissingRequiredFieldError reports a write lacking a field the event needs
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// InvalidEventError reports an event whose fields contradict each other
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return "invalid event: " + e.Reason
}

// InvalidExceptionError reports an exception request that cannot apply to
// its target
type InvalidExceptionError struct {
	Reason string
}

func (e *InvalidExceptionError) Error() string {
	return "invalid exception: " + e.Reason
}

// InvalidQueryError reports an instance query with an empty or inverted range
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}
