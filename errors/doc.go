// Package errors provides structured error types for the funclet pipeline.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: body offset, funclet index,
// expected/actual descriptions, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Offset(off).
//		Funclet(2).
//		Expected("i32").
//		Actual("f64").
//		Detail("funclet call argument").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(off, "stack operand", "i32", "f64")
//	err := errors.PredecessorCount(3, "backward edges exceed declaration", 1, 2)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
