// Package results carries the outcome of a service operation.
//
// A service operation returns an OperationResult alongside a plain error. The
// error is reserved for infrastructure faults (store down, panic). Expected
// domain failures travel in the result so callers can tell them apart.
package results

// OperationResult holds exactly one of Success or Failure.
type OperationResult[S any, F any] struct {
	Success *S
	Failure *F
}

// SuccessResult wraps a success payload.
func SuccessResult[S any, F any](s S) OperationResult[S, F] {
	return OperationResult[S, F]{Success: &s}
}

// FailureResult wraps a failure payload.
func FailureResult[S any, F any](f F) OperationResult[S, F] {
	return OperationResult[S, F]{Failure: &f}
}

func (r OperationResult[S, F]) IsSuccess() bool {
	return r.Success != nil
}

func (r OperationResult[S, F]) IsFailure() bool {
	return r.Failure != nil
}
