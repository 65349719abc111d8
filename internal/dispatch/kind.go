package dispatch

// ErrorKind classifies a failed invocation
type ErrorKind string

// Invocation failure kinds
const (
	UnknownOperation    ErrorKind = "UnknownOperation"
	MissingArgument     ErrorKind = "MissingArgument"
	InvalidArgumentType ErrorKind = "InvalidArgumentType"
	DivisionByZero      ErrorKind = "DivisionByZero"
	InvalidDomain       ErrorKind = "InvalidDomain"
	InternalError       ErrorKind = "InternalError"
)

// Transport failure kinds, produced by hosts before a request reaches the dispatcher
const (
	InvalidRequest ErrorKind = "InvalidRequest"
	RateLimited    ErrorKind = "RateLimited"
)

// Kinds lists the invocation failure kinds in documentation order
func Kinds() []ErrorKind {
	return []ErrorKind{
		UnknownOperation,
		MissingArgument,
		InvalidArgumentType,
		DivisionByZero,
		InvalidDomain,
		InternalError,
	}
}

// IsDomain reports whether the kind is a modeled computation failure
func (k ErrorKind) IsDomain() bool {
	return k == DivisionByZero || k == InvalidDomain
}

// IsCallerError reports whether the caller can fix the request to succeed
func (k ErrorKind) IsCallerError() bool {
	switch k {
	case UnknownOperation, MissingArgument, InvalidArgumentType, InvalidRequest:
		return true
	default:
		return false
	}
}
