// Package dispatch turns named invocation requests into typed results.
//
// A Dispatcher validates the raw argument bag against the registry entry,
// runs the computation and converts every outcome, including panics, into
// a Result value. It holds no mutable state and is safe for concurrent use.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hession/calcmate/internal/logger"
	"github.com/hession/calcmate/internal/tools"
)

// Event describes one completed invocation
type Event struct {
	Request  Request
	Result   Result
	Start    time.Time
	Duration time.Duration
}

// Observer receives every completed invocation
type Observer func(Event)

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithObserver adds an observer. Observers run synchronously, in the order
// added, after the result is built; they cannot change it.
func WithObserver(fn Observer) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.observers = append(d.observers, fn)
		}
	}
}

// Dispatcher routes requests to registry operations
type Dispatcher struct {
	registry  *tools.Registry
	observers []Observer
}

// New creates a dispatcher over an initialized registry
func New(registry *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher serves
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// Invoke executes a request. It never panics and never returns a Go error:
// every failure is reported as a Result with status error.
func (d *Dispatcher) Invoke(req Request) Result {
	start := time.Now()
	result := d.invoke(req)
	duration := time.Since(start)

	if result.OK() {
		logger.Debug("Invocation %s succeeded in %v: %s", req.OperationName, duration, result.Text)
	} else {
		logger.Debug("Invocation %s failed in %v: [%s] %s", req.OperationName, duration, result.Kind, result.Message)
	}

	d.notify(Event{Request: req, Result: result, Start: start, Duration: duration})
	return result
}

func (d *Dispatcher) invoke(req Request) Result {
	spec, exists := d.registry.Lookup(req.OperationName)
	if !exists {
		return Failure(UnknownOperation, "Unknown operation: %q (available: %s)",
			req.OperationName, strings.Join(d.registry.Names(), ", "))
	}

	args, failure, ok := validate(spec, req.Arguments)
	if !ok {
		return failure
	}

	value, err := safeCompute(spec, args)
	if err != nil {
		return classify(spec.Name, err)
	}

	if math.IsNaN(value) {
		return Failure(InvalidDomain, "%s: result is not a real number", spec.Name)
	}
	if math.IsInf(value, 0) {
		return Failure(InvalidDomain, "%s: result is out of range", spec.Name)
	}

	text, err := safeFormat(spec, args, value)
	if err != nil {
		return classify(spec.Name, err)
	}

	return Success(value, text)
}

// validate checks presence of all parameters first, then their types,
// both in declaration order. Arguments that match no parameter are ignored.
func validate(spec tools.OperationSpec, raw map[string]any) (tools.Args, Result, bool) {
	var missing []string
	for _, param := range spec.Parameters {
		if _, present := raw[param.Name]; !present && param.Required {
			missing = append(missing, param.Name)
		}
	}
	if len(missing) > 0 {
		return nil, Failure(MissingArgument, "Missing required argument(s) for %s: %s",
			spec.Name, strings.Join(missing, ", ")), false
	}

	args := make(tools.Args, len(spec.Parameters))
	for _, param := range spec.Parameters {
		v, present := raw[param.Name]
		if !present {
			continue
		}
		n, ok := coerceNumber(v)
		if !ok {
			return nil, Failure(InvalidArgumentType, "Invalid argument %q for %s: expected a number, got %s",
				param.Name, spec.Name, describeValue(v)), false
		}
		args[param.Name] = n
	}
	return args, Result{}, true
}

// internalError carries a recovered panic value
type internalError struct {
	value any
	stack []byte
}

func (e *internalError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func safeCompute(spec tools.OperationSpec, args tools.Args) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &internalError{value: r, stack: debug.Stack()}
		}
	}()
	return spec.Compute(args)
}

func safeFormat(spec tools.OperationSpec, args tools.Args, value float64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &internalError{value: r, stack: debug.Stack()}
		}
	}()
	return spec.Format(args, value), nil
}

// classify maps a computation error to a failure kind. Only modeled domain
// errors keep their message; anything else is reported as InternalError and
// its detail goes to the log.
func classify(op string, err error) Result {
	var domainErr *tools.DomainError
	if errors.As(err, &domainErr) {
		switch {
		case errors.Is(err, tools.ErrDivisionByZero):
			return Failure(DivisionByZero, "%s", domainErr.Message)
		case errors.Is(err, tools.ErrInvalidDomain), errors.Is(err, tools.ErrOutOfRange):
			return Failure(InvalidDomain, "%s", domainErr.Message)
		}
	}

	var panicErr *internalError
	if errors.As(err, &panicErr) {
		logger.Error("Operation %s panicked: %v\n%s", op, panicErr.value, panicErr.stack)
	} else {
		logger.Error("Operation %s failed unexpectedly: %v", op, err)
	}
	return Failure(InternalError, "internal error while executing %s", op)
}

func (d *Dispatcher) notify(event Event) {
	for _, observer := range d.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Invocation observer panicked: %v", r)
				}
			}()
			observer(event)
		}()
	}
}
