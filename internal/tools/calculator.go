package tools

import (
	"fmt"
	"math"
)

// CalculatorOperations returns the calculator operation table in discovery order
func CalculatorOperations() []OperationSpec {
	return []OperationSpec{
		{
			Name:        "add",
			Description: "Add two numbers together",
			Parameters:  binaryParams("First number", "Second number"),
			Compute: func(args Args) (float64, error) {
				return args.Value("a") + args.Value("b"), nil
			},
			Format: func(args Args, result float64) string {
				return fmt.Sprintf("Result: %s + %s = %s",
					args.Operand("a"), args.Operand("b"), FormatNumber(result, args.Integral("a", "b")))
			},
		},
		{
			Name:        "subtract",
			Description: "Subtract second number from first number",
			Parameters:  binaryParams("First number (minuend)", "Second number (subtrahend)"),
			Compute: func(args Args) (float64, error) {
				return args.Value("a") - args.Value("b"), nil
			},
			Format: func(args Args, result float64) string {
				return fmt.Sprintf("Result: %s - %s = %s",
					args.Operand("a"), args.Operand("b"), FormatNumber(result, args.Integral("a", "b")))
			},
		},
		{
			Name:        "multiply",
			Description: "Multiply two numbers together",
			Parameters:  binaryParams("First number", "Second number"),
			Compute: func(args Args) (float64, error) {
				return args.Value("a") * args.Value("b"), nil
			},
			Format: func(args Args, result float64) string {
				return fmt.Sprintf("Result: %s * %s = %s",
					args.Operand("a"), args.Operand("b"), FormatNumber(result, args.Integral("a", "b")))
			},
		},
		{
			Name:        "divide",
			Description: "Divide first number by second number",
			Parameters:  binaryParams("Numerator", "Denominator (cannot be zero)"),
			Compute: func(args Args) (float64, error) {
				if args.Value("b") == 0 {
					return 0, NewDomainError(ErrDivisionByZero, "Division by zero is not allowed")
				}
				return args.Value("a") / args.Value("b"), nil
			},
			Format: func(args Args, result float64) string {
				// true division, always a float
				return fmt.Sprintf("Result: %s / %s = %s",
					args.Operand("a"), args.Operand("b"), FormatNumber(result, false))
			},
		},
		{
			Name:        "power",
			Description: "Raise first number to the power of second number",
			Parameters: []ParameterDef{
				numberParam("base", "Base number"),
				numberParam("exponent", "Exponent"),
			},
			Compute: computePower,
			Format: func(args Args, result float64) string {
				integral := args.Integral("base", "exponent") && args.Value("exponent") >= 0
				return fmt.Sprintf("Result: %s ^ %s = %s",
					args.Operand("base"), args.Operand("exponent"), FormatNumber(result, integral))
			},
		},
		{
			Name:        "sqrt",
			Description: "Calculate square root of a number",
			Parameters: []ParameterDef{
				numberParam("number", "Number to calculate square root of (must be non-negative)"),
			},
			Compute: func(args Args) (float64, error) {
				if args.Value("number") < 0 {
					return 0, NewDomainError(ErrInvalidDomain, "Cannot calculate square root of a negative number")
				}
				return math.Sqrt(args.Value("number")), nil
			},
			Format: func(args Args, result float64) string {
				return fmt.Sprintf("Result: sqrt(%s) = %s", args.Operand("number"), FormatNumber(result, false))
			},
		},
		{
			Name:        "percentage",
			Description: "Calculate percentage of a number",
			Parameters: []ParameterDef{
				numberParam("number", "The number to calculate percentage of"),
				numberParam("percent", "The percentage value"),
			},
			Compute: func(args Args) (float64, error) {
				// multiply first: 100 * 15 / 100 must be exactly 15
				return args.Value("number") * args.Value("percent") / 100, nil
			},
			Format: func(args Args, result float64) string {
				return fmt.Sprintf("Result: %s%% of %s = %s",
					args.Operand("percent"), args.Operand("number"), FormatNumber(result, false))
			},
		},
	}
}

func computePower(args Args) (float64, error) {
	base, exponent := args.Value("base"), args.Value("exponent")

	if base == 0 && exponent < 0 {
		return 0, NewDomainError(ErrDivisionByZero, "0 cannot be raised to a negative power")
	}
	if base < 0 && exponent != math.Trunc(exponent) {
		return 0, NewDomainError(ErrInvalidDomain,
			"Cannot raise a negative base to a fractional exponent: the result is not a real number")
	}
	return math.Pow(base, exponent), nil
}

func numberParam(name, description string) ParameterDef {
	return ParameterDef{
		Name:        name,
		Type:        "number",
		Description: description,
		Required:    true,
	}
}

func binaryParams(descA, descB string) []ParameterDef {
	return []ParameterDef{
		numberParam("a", descA),
		numberParam("b", descB),
	}
}
