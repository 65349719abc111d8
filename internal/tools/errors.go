package tools

import (
	"errors"
	"fmt"
)

// Domain error categories, matched with errors.Is
var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrInvalidDomain  = errors.New("invalid domain")
	ErrOutOfRange     = errors.New("result out of range")
)

// DomainError is a modeled computation failure. It is returned by ComputeFunc
// and converted into a typed failure by the dispatcher.
type DomainError struct {
	Err     error // one of ErrDivisionByZero, ErrInvalidDomain, ErrOutOfRange
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a domain error of the given category
func NewDomainError(category error, format string, args ...any) *DomainError {
	return &DomainError{
		Err:     category,
		Message: fmt.Sprintf(format, args...),
	}
}
