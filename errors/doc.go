// Package errors provides structured error types for rb2js.
//
// Errors are categorized by Phase (the pipeline stage that failed) and Kind
// (the error category). An Error carries an optional field path, the
// offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidData).
//		Path("body", "2", "value").
//		Value(tag).
//		Detail("unexpected node tag").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseMemory, offset, length)
//	err := errors.Execution(code, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
