// Package tools provides built-in tools for AI agents.
// This file implements the math tool: mathematical operations powered by
// professional libraries (govaluate for expression evaluation, gonum for
// statistics).
package tools

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/stat"
)

// MathToolID is the stable identifier for the built-in math tool.
const MathToolID = "math"

// NewMathTool builds the built-in math tool: expression evaluation,
// descriptive statistics, simple equation solving, unit conversion, and
// random generation, each exposed as its own method.
func NewMathTool() Tool {
	return &mathTool{}
}

type mathTool struct{}

func (t *mathTool) ToolID() string { return MathToolID }

func (t *mathTool) Methods() []Method {
	numArray := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "array",
			"description": desc,
			"items":       map[string]interface{}{"type": "number"},
		}
	}
	strArray := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "array",
			"description": desc,
			"items":       map[string]interface{}{"type": "string"},
		}
	}

	return []Method{
		{
			Name:        "evaluate",
			Description: "Evaluate a mathematical expression, supporting sin, cos, sqrt, pow, log, and similar functions",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"expression"},
				"properties": map[string]interface{}{
					"expression": map[string]interface{}{
						"type":        "string",
						"description": "Expression to evaluate, e.g. '2 * (3 + 4)' or 'sin(3.14/2) + sqrt(16)'",
					},
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return evaluate(stringParam(params, "expression"))
			},
			InlineMarkup: &InlineMarkupSchema{
				Tag: "evaluate",
				Params: map[string]ParamSource{
					"expression": {Kind: ParamFromContent},
				},
				Example: `<evaluate>2 * (3 + 4) + sqrt(16)</evaluate>`,
			},
		},
		{
			Name:        "statistics",
			Description: "Calculate a statistical measure (mean, median, stdev, variance, min, max, sum) over a list of numbers",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"numbers", "stat_type"},
				"properties": map[string]interface{}{
					"numbers":   numArray("Numbers to summarize"),
					"stat_type": StringParam("One of: mean, median, stdev, variance, min, max, sum"),
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return statistics(float64SliceParam(params, "numbers"), stringParam(params, "stat_type"))
			},
		},
		{
			Name:        "solve",
			Description: "Solve a simple linear equation of the form 'x+5=10' or 'x-3=7'",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"equation"},
				"properties": map[string]interface{}{
					"equation": StringParam("Equation to solve, e.g. 'x+5=10'"),
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return solve(stringParam(params, "equation"))
			},
		},
		{
			Name:        "convert",
			Description: "Convert a value between units of distance, weight, temperature, or time",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"value", "from_unit", "to_unit"},
				"properties": map[string]interface{}{
					"value":     map[string]interface{}{"type": "number", "description": "Value to convert"},
					"from_unit": StringParam("Source unit (km, m, cm, kg, g, celsius, fahrenheit, hours, minutes, seconds)"),
					"to_unit":   StringParam("Target unit"),
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				value, _ := numberParam(params, "value")
				return convert(value, stringParam(params, "from_unit"), stringParam(params, "to_unit"))
			},
		},
		{
			Name:        "random",
			Description: "Generate a random integer, float, or choice from a list",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []string{"random_type"},
				"properties": map[string]interface{}{
					"random_type": StringParam("One of: integer, float, choice"),
					"min":         map[string]interface{}{"type": "number", "description": "Min value for integer/float"},
					"max":         map[string]interface{}{"type": "number", "description": "Max value for integer/float"},
					"choices":     strArray("List of choices for the choice type"),
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				minVal, _ := numberParam(params, "min")
				maxVal, _ := numberParam(params, "max")
				return randomOp(stringParam(params, "random_type"), minVal, maxVal, stringSliceParam(params, "choices"))
			},
		},
	}
}

// StringParam is a shared schema-builder helper for a plain string
// parameter, used by the built-in tools' method definitions.
func StringParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func float64SliceParam(params map[string]interface{}, key string) []float64 {
	raw, _ := params[key].([]interface{})
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, _ := params[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func evaluate(expression string) (string, error) {
	ctx := getContext()

	logDebug(ctx, "Evaluating math expression", map[string]interface{}{
		"tool":       "math",
		"operation":  "evaluate",
		"expression": expression,
	})

	if expression == "" {
		return "", fmt.Errorf("%w: expression is required", ErrInvalidInput)
	}

	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, map[string]govaluate.ExpressionFunction{
		"sqrt": func(args ...interface{}) (interface{}, error) {
			return math.Sqrt(args[0].(float64)), nil
		},
		"pow": func(args ...interface{}) (interface{}, error) {
			return math.Pow(args[0].(float64), args[1].(float64)), nil
		},
		"sin": func(args ...interface{}) (interface{}, error) {
			return math.Sin(args[0].(float64)), nil
		},
		"cos": func(args ...interface{}) (interface{}, error) {
			return math.Cos(args[0].(float64)), nil
		},
		"tan": func(args ...interface{}) (interface{}, error) {
			return math.Tan(args[0].(float64)), nil
		},
		"log": func(args ...interface{}) (interface{}, error) {
			return math.Log10(args[0].(float64)), nil
		},
		"ln": func(args ...interface{}) (interface{}, error) {
			return math.Log(args[0].(float64)), nil
		},
		"abs": func(args ...interface{}) (interface{}, error) {
			return math.Abs(args[0].(float64)), nil
		},
		"ceil": func(args ...interface{}) (interface{}, error) {
			return math.Ceil(args[0].(float64)), nil
		},
		"floor": func(args ...interface{}) (interface{}, error) {
			return math.Floor(args[0].(float64)), nil
		},
		"round": func(args ...interface{}) (interface{}, error) {
			return math.Round(args[0].(float64)), nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: invalid expression: %v", ErrInvalidInput, err)
	}

	result, err := expr.Evaluate(nil)
	if err != nil {
		return "", fmt.Errorf("%w: evaluation failed: %v", ErrOperationFailed, err)
	}

	var resultFloat float64
	switch v := result.(type) {
	case float64:
		resultFloat = v
	case int:
		resultFloat = float64(v)
	default:
		return "", fmt.Errorf("%w: unexpected result type", ErrOperationFailed)
	}

	return fmt.Sprintf("%.6f", resultFloat), nil
}

func statistics(numbers []float64, statType string) (string, error) {
	if len(numbers) == 0 {
		return "", fmt.Errorf("%w: numbers array is required", ErrInvalidInput)
	}
	if statType == "" {
		return "", fmt.Errorf("%w: stat_type is required", ErrInvalidInput)
	}

	var result float64

	switch statType {
	case "mean":
		result = stat.Mean(numbers, nil)
	case "median":
		sorted := make([]float64, len(numbers))
		copy(sorted, numbers)
		result = median(sorted)
	case "stdev":
		result = stat.StdDev(numbers, nil)
	case "variance":
		result = stat.Variance(numbers, nil)
	case "min":
		result = minOf(numbers)
	case "max":
		result = maxOf(numbers)
	case "sum":
		for _, n := range numbers {
			result += n
		}
	default:
		return "", fmt.Errorf("%w: unknown stat_type '%s'", ErrInvalidInput, statType)
	}

	return fmt.Sprintf("%.6f", result), nil
}

func solve(equation string) (string, error) {
	if equation == "" {
		return "", fmt.Errorf("%w: equation is required", ErrInvalidInput)
	}

	parts := strings.Split(equation, "=")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: equation must contain '='", ErrInvalidInput)
	}

	left := strings.TrimSpace(parts[0])
	right := strings.TrimSpace(parts[1])

	if strings.Contains(left, "x") && !strings.Contains(left, "x^2") && !strings.Contains(left, "*") {
		return solveLinear(left, right)
	}

	if strings.Contains(left, "x^2") {
		return solveQuadratic(left, right)
	}

	return "", fmt.Errorf("%w: unsupported equation format", ErrInvalidInput)
}

func solveLinear(left, right string) (string, error) {
	rightVal, err := strconv.ParseFloat(right, 64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid right side value", ErrInvalidInput)
	}

	left = strings.ReplaceAll(left, " ", "")

	if strings.HasPrefix(left, "x+") {
		b, _ := strconv.ParseFloat(left[2:], 64)
		x := rightVal - b
		return fmt.Sprintf("x = %.6f", x), nil
	}

	if strings.HasPrefix(left, "x-") {
		b, _ := strconv.ParseFloat(left[2:], 64)
		x := rightVal + b
		return fmt.Sprintf("x = %.6f", x), nil
	}

	if left == "x" {
		return fmt.Sprintf("x = %.6f", rightVal), nil
	}

	return "", fmt.Errorf("%w: unsupported linear equation format", ErrInvalidInput)
}

func solveQuadratic(left, right string) (string, error) {
	return "", fmt.Errorf("%w: quadratic solver not yet implemented", ErrOperationFailed)
}

func convert(value float64, fromUnit, toUnit string) (string, error) {
	if fromUnit == "" || toUnit == "" {
		return "", fmt.Errorf("%w: from_unit and to_unit are required", ErrInvalidInput)
	}

	fromUnit = strings.ToLower(fromUnit)
	toUnit = strings.ToLower(toUnit)

	distanceUnits := map[string]float64{
		"km": 1000.0,
		"m":  1.0,
		"cm": 0.01,
		"mm": 0.001,
	}

	weightUnits := map[string]float64{
		"kg": 1000.0,
		"g":  1.0,
		"mg": 0.001,
	}

	if fromUnit == "celsius" && toUnit == "fahrenheit" {
		result := (value * 9 / 5) + 32
		return fmt.Sprintf("%.6f %s", result, toUnit), nil
	}
	if fromUnit == "fahrenheit" && toUnit == "celsius" {
		result := (value - 32) * 5 / 9
		return fmt.Sprintf("%.6f %s", result, toUnit), nil
	}

	timeUnits := map[string]float64{
		"hours":   3600.0,
		"minutes": 60.0,
		"seconds": 1.0,
	}

	if fromFactor, ok := distanceUnits[fromUnit]; ok {
		if toFactor, ok := distanceUnits[toUnit]; ok {
			result := (value * fromFactor) / toFactor
			return fmt.Sprintf("%.6f %s", result, toUnit), nil
		}
	}

	if fromFactor, ok := weightUnits[fromUnit]; ok {
		if toFactor, ok := weightUnits[toUnit]; ok {
			result := (value * fromFactor) / toFactor
			return fmt.Sprintf("%.6f %s", result, toUnit), nil
		}
	}

	if fromFactor, ok := timeUnits[fromUnit]; ok {
		if toFactor, ok := timeUnits[toUnit]; ok {
			result := (value * fromFactor) / toFactor
			return fmt.Sprintf("%.6f %s", result, toUnit), nil
		}
	}

	return "", fmt.Errorf("%w: unsupported unit conversion from '%s' to '%s'", ErrInvalidInput, fromUnit, toUnit)
}

func randomOp(randomType string, minVal, maxVal float64, choices []string) (string, error) {
	if randomType == "" {
		return "", fmt.Errorf("%w: random_type is required", ErrInvalidInput)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	switch randomType {
	case "integer":
		if minVal >= maxVal {
			return "", fmt.Errorf("%w: min must be less than max", ErrInvalidInput)
		}
		result := int(minVal) + rng.Intn(int(maxVal-minVal+1))
		return fmt.Sprintf("%d", result), nil

	case "float":
		if minVal >= maxVal {
			return "", fmt.Errorf("%w: min must be less than max", ErrInvalidInput)
		}
		result := minVal + rng.Float64()*(maxVal-minVal)
		return fmt.Sprintf("%.6f", result), nil

	case "choice":
		if len(choices) == 0 {
			return "", fmt.Errorf("%w: choices array is required", ErrInvalidInput)
		}
		idx := rng.Intn(len(choices))
		return choices[idx], nil

	default:
		return "", fmt.Errorf("%w: unknown random_type '%s'", ErrInvalidInput, randomType)
	}
}

func median(numbers []float64) float64 {
	n := len(numbers)
	if n == 0 {
		return 0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if numbers[i] > numbers[j] {
				numbers[i], numbers[j] = numbers[j], numbers[i]
			}
		}
	}

	if n%2 == 0 {
		return (numbers[n/2-1] + numbers[n/2]) / 2
	}
	return numbers[n/2]
}

func minOf(numbers []float64) float64 {
	if len(numbers) == 0 {
		return 0
	}
	minVal := numbers[0]
	for _, n := range numbers {
		if n < minVal {
			minVal = n
		}
	}
	return minVal
}

func maxOf(numbers []float64) float64 {
	if len(numbers) == 0 {
		return 0
	}
	maxVal := numbers[0]
	for _, n := range numbers {
		if n > maxVal {
			maxVal = n
		}
	}
	return maxVal
}
