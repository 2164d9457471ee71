// Package errors provides standardized error handling patterns for Brickflow.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing). Classification enables callers to
// make retry and escalation decisions without error string matching.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Store", "Get", "kv get")          // retryable
//	errors.WrapInvalid(err, "Pipe", "Extract", "brick records")  // bad input
//	errors.WrapFatal(err, "Store", "Open", "bucket create")      // unrecoverable
//
// The generic Wrap() adds context while preserving the original classification.
//
// # Standard Error Variables
//
// Pre-defined variables cover the conditions the composition core reports:
//
//   - Serialization: ErrMalformedData, ErrUnsafeValueType
//   - Composition: ErrBrickNotFound, ErrFactoryNotFound, ErrDuplicateFactory
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//   - Persistence: ErrPipeNotFound, ErrPipeExists, ErrVersionConflict
//
// Use these instead of ad hoc error messages so callers can rely on errors.Is.
//
// # Integration with errors.As/Is
//
// Classification is preserved through wrapping chains:
//
//	wrapped := errors.WrapInvalid(errors.ErrMalformedData, "Pipe", "Extract", "decode")
//	errors.IsInvalid(wrapped) // true
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified
// as Transient, so context-based timeouts follow the same retry semantics as
// network timeouts.
package errors
