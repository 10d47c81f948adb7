package importer

import (
	"fmt"
	"strings"
)

// SchemaError is returned before any row is written when the header lacks the key column.
type SchemaError struct {
	Column  string
	Headers []string
}

func (e *SchemaError) Error() string {
	if len(e.Headers) == 0 {
		return fmt.Sprintf("CSV must include header '%s' (no header row found)", e.Column)
	}
	return fmt.Sprintf("CSV must include header '%s' (found: %s)", e.Column, strings.Join(e.Headers, ", "))
}

// RowError is a single skipped row. It never fails the job.
type RowError struct {
	Line int
	Key  string
	Err  error
}

func (e *RowError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (key %q): %v", e.Line, e.Key, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// BatchCommitError aborts the import. Processed is the count committed before the failure.
type BatchCommitError struct {
	Processed int64
	Err       error
}

func (e *BatchCommitError) Error() string {
	return fmt.Sprintf("batch commit failed after %d rows: %v", e.Processed, e.Err)
}

func (e *BatchCommitError) Unwrap() error { return e.Err }
