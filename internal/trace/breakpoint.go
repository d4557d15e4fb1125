package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/multios/introspect/internal/errorutil"
)

type (
	// BreakpointConfig is the client-supplied definition of a breakpoint.
	BreakpointConfig struct {
		SyscallName string `json:"syscall_name"`
		Condition   string `json:"condition,omitempty"`
	}

	// Breakpoint pauses a session when a captured syscall matches its name
	// and, if one is set, its condition.
	Breakpoint struct {
		ID          uint64 `json:"id"`
		SyscallName string `json:"syscall_name"`
		Condition   string `json:"condition,omitempty"`
		HitCount    uint64 `json:"hit_count"`

		cond *condition
	}

	condition struct {
		field    string
		argIndex int
		op       string
		str      string
		num      int64
		unum     uint64
	}
)

const (
	fieldName     = "name"
	fieldResult   = "result"
	fieldDuration = "duration_ns"
	fieldError    = "error"
	fieldArg      = "arg"
)

var conditionOps = map[string]struct{}{
	"==": {},
	"!=": {},
	"<":  {},
	"<=": {},
	">":  {},
	">=": {},
}

// newBreakpoints validates and compiles client breakpoint definitions.
// Breakpoint IDs follow registration order, which is also the order they are
// evaluated in.
func newBreakpoints(configs []BreakpointConfig) ([]Breakpoint, error) {
	if len(configs) == 0 {
		return nil, nil
	}
	breakpoints := make([]Breakpoint, 0, len(configs))
	for i, c := range configs {
		if c.SyscallName == "" {
			return nil, fmt.Errorf("%w: breakpoint %d: syscall name is required", errorutil.ErrInvalidArgument, i)
		}
		b := Breakpoint{
			ID:          uint64(i + 1),
			SyscallName: c.SyscallName,
			Condition:   c.Condition,
		}
		if c.Condition != "" {
			cond, err := parseCondition(c.Condition)
			if err != nil {
				return nil, fmt.Errorf("%w: breakpoint %d: %v", errorutil.ErrInvalidArgument, i, err)
			}
			b.cond = cond
		}
		breakpoints = append(breakpoints, b)
	}
	return breakpoints, nil
}

// matches reports whether the breakpoint fires on the event.
func (b *Breakpoint) matches(e Event) bool {
	if b.SyscallName != e.Name {
		return false
	}
	if b.cond == nil {
		return true
	}
	return b.cond.eval(e)
}

// parseCondition compiles a "<field> <op> <literal>" comparison. The field is
// one of name, result, duration_ns, error or argN for the Nth syscall
// parameter. Numeric fields support the full set of comparison operators,
// string fields only equality.
func parseCondition(expr string) (*condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return nil, fmt.Errorf("condition %q: want \"<field> <op> <literal>\"", expr)
	}
	field, op, literal := parts[0], parts[1], parts[2]
	if _, ok := conditionOps[op]; !ok {
		return nil, fmt.Errorf("condition %q: unknown operator %q", expr, op)
	}
	c := condition{field: field, op: op}
	switch {
	case field == fieldName || field == fieldError:
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("condition %q: %s only supports == and !=", expr, field)
		}
		c.str = unquote(literal)
	case field == fieldResult:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("condition %q: result wants an integer literal", expr)
		}
		c.num = n
	case field == fieldDuration:
		n, err := strconv.ParseUint(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("condition %q: duration_ns wants an unsigned integer literal", expr)
		}
		c.unum = n
	case strings.HasPrefix(field, fieldArg):
		index, err := strconv.Atoi(strings.TrimPrefix(field, fieldArg))
		if err != nil || index < 0 {
			return nil, fmt.Errorf("condition %q: unknown field %q", expr, field)
		}
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("condition %q: parameters only support == and !=", expr)
		}
		c.field = fieldArg
		c.argIndex = index
		c.str = unquote(literal)
	default:
		return nil, fmt.Errorf("condition %q: unknown field %q", expr, field)
	}
	return &c, nil
}

func (c *condition) eval(e Event) bool {
	switch c.field {
	case fieldName:
		return compareString(e.Name, c.op, c.str)
	case fieldError:
		return compareString(e.Error, c.op, c.str)
	case fieldResult:
		return compareInt(e.Result, c.op, c.num)
	case fieldDuration:
		return compareUint(e.DurationNS, c.op, c.unum)
	case fieldArg:
		if c.argIndex >= len(e.Parameters) {
			return false
		}
		return compareString(e.Parameters[c.argIndex], c.op, c.str)
	}
	return false
}

func compareString(value, op, want string) bool {
	if op == "==" {
		return value == want
	}
	return value != want
}

func compareInt(value int64, op string, want int64) bool {
	switch op {
	case "==":
		return value == want
	case "!=":
		return value != want
	case "<":
		return value < want
	case "<=":
		return value <= want
	case ">":
		return value > want
	case ">=":
		return value >= want
	}
	return false
}

func compareUint(value uint64, op string, want uint64) bool {
	switch op {
	case "==":
		return value == want
	case "!=":
		return value != want
	case "<":
		return value < want
	case "<=":
		return value <= want
	case ">":
		return value > want
	case ">=":
		return value >= want
	}
	return false
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
