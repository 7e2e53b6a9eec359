package jobs

import "fmt"

// ParseError means the accumulated completion text was not valid JSON
// after code-fence stripping.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse completion output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaValidationError means the JSON parsed but violated the expected
// shape: missing fields, out-of-range choice indices, short title, too few
// options. Retried with the same budget as transport failures.
type SchemaValidationError struct {
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return "completion output rejected: " + e.Reason
}
