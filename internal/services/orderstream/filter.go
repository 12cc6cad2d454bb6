package orderstream

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/ordernotify/internal/orders"
)

// orderFilter wraps a compiled CEL program evaluated per order event. When
// disabled, Match always returns true.
type orderFilter struct {
	prog    cel.Program
	enabled bool
}

func newOrderFilter(expr string) (orderFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return orderFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("order_id", cel.IntType),
		cel.Variable("order_number", cel.StringType),
		cel.Variable("customer", cel.StringType),
		cel.Variable("total", cel.DoubleType),
		cel.Variable("order_type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("created_ms", cel.IntType),
	)
	if err != nil {
		return orderFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return orderFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return orderFilter{}, iss2.Err()
	}
	if out := checked.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return orderFilter{}, fmt.Errorf("filter must evaluate to bool, got %s", out)
	}
	prog, err := env.Program(checked)
	if err != nil {
		return orderFilter{}, err
	}
	return orderFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the expression against ev. Evaluation errors count as no
// match.
func (f orderFilter) Match(ev orders.SummaryEvent) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"order_id":     ev.OrderID,
		"order_number": ev.OrderNumber,
		"customer":     ev.CustomerName,
		"total":        ev.TotalAmount,
		"order_type":   ev.OrderType,
		"status":       string(ev.Status),
		"created_ms":   ev.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
