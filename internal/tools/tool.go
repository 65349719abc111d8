package tools

// ComputeFunc computes an operation result from validated arguments.
// It returns a *DomainError for modeled failures (division by zero, negative root).
type ComputeFunc func(args Args) (float64, error)

// FormatFunc renders the canonical result text of an operation
type FormatFunc func(args Args, result float64) string

// OperationSpec operation definition
type OperationSpec struct {
	Name        string         // Operation name, unique within a registry
	Description string         // Operation description (for LLM)
	Parameters  []ParameterDef // Parameter definitions, in declaration order
	Compute     ComputeFunc
	Format      FormatFunc
}

// ParameterDef parameter definition
type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // always "number" for calculator operations
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Number is a validated numeric argument
type Number struct {
	Value float64
	// Integral reports whether the caller wrote the value as an integer.
	// It only affects rendering, never arithmetic.
	Integral bool
}

// Args validated arguments keyed by parameter name
type Args map[string]Number

// Value returns the numeric value of a parameter
func (a Args) Value(name string) float64 {
	return a[name].Value
}

// Integral reports whether all named parameters were integer-typed
func (a Args) Integral(names ...string) bool {
	for _, name := range names {
		if !a[name].Integral {
			return false
		}
	}
	return true
}

// Operand renders a parameter the way it appears in result text
func (a Args) Operand(name string) string {
	return FormatOperand(a[name])
}
