package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// EvalValue evaluates a set_variable value. Tokens are substituted first,
// then the result is treated as arithmetic over + - * / when every operand is
// numeric. Non-numeric operands degrade to string concatenation for +; the
// other operators fail, surfaced as a node-level error.
func EvalValue(raw string, s Store) (string, error) {
	if err := checkFlowTokens(raw, s); err != nil {
		return "", err
	}
	substituted := Substitute(raw, s)

	operands, ops := splitArithmetic(substituted)
	if len(ops) == 0 {
		return substituted, nil
	}

	floats := make([]float64, len(operands))
	numeric := true
	for i, op := range operands {
		f, err := strconv.ParseFloat(op, 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = f
	}

	if numeric {
		return evalArithmetic(floats, ops)
	}

	for _, op := range ops {
		if op != '+' {
			return "", fmt.Errorf("operator %q needs numeric operands in %q", string(op), substituted)
		}
	}
	return strings.Join(operands, ""), nil
}

// checkFlowTokens rejects references to flow variables that were never
// declared. Display text substitutes fail-soft, but an assignment reading an
// undeclared variable is an authoring error and must say so.
func checkFlowTokens(raw string, s Store) error {
	for _, match := range tokenPattern.FindAllString(raw, -1) {
		name := match[1 : len(match)-1]
		if strings.HasPrefix(name, FlowPrefix) && !s.Exists(name) {
			return fmt.Errorf("variable %q is not declared", name)
		}
	}
	return nil
}

// evalArithmetic hands the numeric case to expr-lang, with operands bound as
// variables so the values stay float64 end to end.
func evalArithmetic(floats []float64, ops []byte) (string, error) {
	env := make(map[string]any, len(floats))
	var sb strings.Builder
	for i, f := range floats {
		name := fmt.Sprintf("v%d", i)
		env[name] = f
		if i > 0 {
			sb.WriteByte(ops[i-1])
		}
		sb.WriteString(name)
	}

	program, err := expr.Compile(sb.String(), expr.Env(env))
	if err != nil {
		return "", fmt.Errorf("compiling expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}
	f, ok := out.(float64)
	if !ok {
		return "", fmt.Errorf("expression evaluated to %T, expected number", out)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("expression has no finite result (division by zero?)")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// splitArithmetic breaks a substituted value into operands and top-level
// operators. A minus directly before an operand is a sign, not an operator.
func splitArithmetic(s string) (operands []string, ops []byte) {
	var cur strings.Builder
	expectOperand := true
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '+', '-', '*', '/':
			if expectOperand {
				cur.WriteByte(ch)
				expectOperand = false
				continue
			}
			operands = append(operands, strings.TrimSpace(cur.String()))
			cur.Reset()
			ops = append(ops, ch)
			expectOperand = true
		case ' ', '\t':
			cur.WriteByte(ch)
		default:
			cur.WriteByte(ch)
			expectOperand = false
		}
	}
	operands = append(operands, strings.TrimSpace(cur.String()))
	return operands, ops
}
