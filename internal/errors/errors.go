// Package errors provides structured error types for the leech core.
// All errors carry a kind and message, and wrap an underlying cause
// where one exists, for consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the core rule or subsystem that
// produced them.
type ErrorCategory string

const (
	ErrCategoryNotFound     ErrorCategory = "NOT_FOUND"
	ErrCategoryIo           ErrorCategory = "IO"
	ErrCategoryCorrupt      ErrorCategory = "CORRUPT"
	ErrCategoryConfig       ErrorCategory = "CONFIG"
	ErrCategoryDuplicateKey ErrorCategory = "DUPLICATE_KEY"
	ErrCategoryConflict     ErrorCategory = "CONFLICT"
)

// Error codes for each category.
const (
	// NotFound codes
	CodeBlockNotFound  = "BLOCK_NOT_FOUND"
	CodeStateNotFound  = "STATE_NOT_FOUND"
	CodeHeadNotFound   = "HEAD_NOT_FOUND"
	CodeFileNotFound   = "FILE_NOT_FOUND"
	CodeSourceNotFound = "SOURCE_NOT_FOUND"

	// Io codes
	CodeReadFailed     = "READ_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeLockFailed     = "LOCK_FAILED"
	CodeRenameFailed   = "RENAME_FAILED"

	// Corrupt codes
	CodeDecodeFailed     = "DECODE_FAILED"
	CodeHashMismatch     = "HASH_MISMATCH"
	CodePointerMalformed = "POINTER_MALFORMED"
	CodeSchemaMismatch   = "SCHEMA_MISMATCH"

	// Config codes
	CodeMissingPrimaryKey = "MISSING_PRIMARY_KEY"
	CodeDuplicateField    = "DUPLICATE_FIELD"
	CodeInvalidMaxAge     = "INVALID_MAX_AGE"
	CodeInvalidMaxBlocks  = "INVALID_MAX_BLOCKS"
	CodeHeaderMismatch    = "HEADER_MISMATCH"
	CodeInvalidStorage    = "INVALID_STORAGE"

	// DuplicateKey codes
	CodeDuplicateRow = "DUPLICATE_ROW"

	// Conflict codes — named after the merge rule that raised them
	CodeRule5  = "RULE_5"
	CodeRule10 = "RULE_10"
	CodeRule11 = "RULE_11"
	CodeRule13 = "RULE_13"
	CodeRule14b = "RULE_14B"
)

// LeechError is the structured error type used throughout the core.
type LeechError struct {
	Category ErrorCategory
	Code     string
	Message  string

	// Table and Key are populated for ErrCategoryDuplicateKey and
	// ErrCategoryConflict; they name the table and primary-key tuple
	// the rule fired on.
	Table string
	Key   []string

	Cause error
}

// Error returns a formatted error string.
func (e *LeechError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *LeechError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's category and code,
// and for DuplicateKey/Conflict errors, the same table and key.
func (e *LeechError) Is(target error) bool {
	var t *LeechError
	if !errors.As(target, &t) {
		return false
	}
	if e.Category != t.Category || e.Code != t.Code {
		return false
	}
	if e.Category != ErrCategoryDuplicateKey && e.Category != ErrCategoryConflict {
		return true
	}
	if e.Table != t.Table || len(e.Key) != len(t.Key) {
		return false
	}
	for i := range e.Key {
		if e.Key[i] != t.Key[i] {
			return false
		}
	}
	return true
}

// New creates a new LeechError.
func New(category ErrorCategory, code, message string) *LeechError {
	return &LeechError{Category: category, Code: code, Message: message}
}

// Wrap creates a new LeechError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *LeechError {
	return &LeechError{Category: category, Code: code, Message: message, Cause: cause}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a LeechError.
func GetCategory(err error) ErrorCategory {
	var le *LeechError
	if errors.As(err, &le) {
		return le.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a LeechError.
func GetCode(err error) string {
	var le *LeechError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err (or its chain) is a NotFound error.
func IsNotFound(err error) bool {
	return GetCategory(err) == ErrCategoryNotFound
}

// IsConflict reports whether err (or its chain) is a merge Conflict,
// and if so returns the offending table and key.
func IsConflict(err error) (table string, key []string, ok bool) {
	var le *LeechError
	if errors.As(err, &le) && le.Category == ErrCategoryConflict {
		return le.Table, le.Key, true
	}
	return "", nil, false
}

// Convenience constructors for common errors.

// NotFoundBlock reports that a block with the given hash does not
// exist in the store.
func NotFoundBlock(hash string) *LeechError {
	return New(ErrCategoryNotFound, CodeBlockNotFound, fmt.Sprintf("block %q not found", hash))
}

// NotFoundState reports that the named state object does not exist.
func NotFoundState(name string) *LeechError {
	return New(ErrCategoryNotFound, CodeStateNotFound, fmt.Sprintf("state %q not found", name))
}

// NotFoundHead reports that the HEAD pointer has never been written.
func NotFoundHead() *LeechError {
	return New(ErrCategoryNotFound, CodeHeadNotFound, "HEAD not set")
}

// NotFoundFile reports that a named file is absent from the store —
// the generic NotFound the store contract raises on an absent read.
func NotFoundFile(name string) *LeechError {
	return New(ErrCategoryNotFound, CodeFileNotFound, fmt.Sprintf("%q not found", name))
}

// NotFoundSource reports that a configured table's CSV source file
// does not exist on disk, distinct from a source file that exists but
// has zero rows.
func NotFoundSource(path string) *LeechError {
	return New(ErrCategoryNotFound, CodeSourceNotFound, fmt.Sprintf("source %q not found", path))
}

// NewIoError wraps a failed filesystem or network operation.
func NewIoError(code, message string, cause error) *LeechError {
	return Wrap(ErrCategoryIo, code, message, cause)
}

// NewCorruptError wraps a decode failure, hash mismatch, or malformed
// pointer file.
func NewCorruptError(code, message string, cause error) *LeechError {
	return Wrap(ErrCategoryCorrupt, code, message, cause)
}

// NewConfigError reports a schema violation found while validating a
// configuration.
func NewConfigError(code, message string) *LeechError {
	return New(ErrCategoryConfig, code, message)
}

// NewDuplicateKeyError reports a duplicate primary-key tuple found
// while loading a single CSV source.
func NewDuplicateKeyError(table string, key []string) *LeechError {
	return &LeechError{
		Category: ErrCategoryDuplicateKey,
		Code:     CodeDuplicateRow,
		Message:  fmt.Sprintf("duplicate primary key %v in table %q", key, table),
		Table:    table,
		Key:      key,
	}
}

// NewConflictError reports a merge rule that detected irreconcilable
// operations on the same key (rules 5, 10, 11, 13, 14b).
func NewConflictError(code, table string, key []string) *LeechError {
	return &LeechError{
		Category: ErrCategoryConflict,
		Code:     code,
		Message:  fmt.Sprintf("irreconcilable operations on key %v in table %q", key, table),
		Table:    table,
		Key:      key,
	}
}
