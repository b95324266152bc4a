package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Operator precedence levels. Higher binds tighter. Comparison operators all
// share the top level; only the logical connectives need relative ordering.
const (
	precOr         = 3
	precAnd        = 4
	precNot        = 5
	precComparison = 10
)

// applyFunc implements an operator's predicate semantics over already
// resolved operand values. Operators never mutate the record or context.
type applyFunc func(env *evalEnv, cond *Condition, left, right interface{}) (bool, error)

// Operator describes one registered operator. The registry holds prototypes;
// operators carrying embedded parameters are configured per occurrence and
// the configured copy is what ends up in the tree.
type Operator struct {
	Keyword            string
	Precedence         int
	Unary              bool
	ExpectedRightWords int

	// Syntax documents the expected usage, quoted in malformed-usage errors.
	Syntax string

	// Configure, when set, consumes the parenthesized parameter list glued to
	// the keyword and returns the configured instance.
	Configure func(params []string) (*Operator, error)

	// ConditionOperand marks operators whose right side, when it is a nested
	// condition, must be received unevaluated (CONTAINS evaluates it once per
	// collection element rather than against the outer record).
	ConditionOperand bool

	apply applyFunc
}

func (o *Operator) String() string {
	return o.Keyword
}

// Registry is an ordered set of operator prototypes. Matching is by keyword
// prefix in registration order, so keywords that prefix one another must be
// registered longest first.
type Registry struct {
	ops []*Operator
}

func NewRegistry(ops ...*Operator) *Registry {
	return &Registry{ops: ops}
}

func (r *Registry) Register(op *Operator) {
	r.ops = append(r.ops, op)
}

// Match selects the first prototype whose keyword prefixes word. When the
// keyword does not consume the whole word the remainder must be a
// parenthesized parameter list handled by the caller; a bare mismatch is a
// malformed usage. No match at all reports an unknown operator.
func (r *Registry) Match(word string, position int) (*Operator, bool, error) {
	for _, op := range r.ops {
		if !strings.HasPrefix(word, op.Keyword) {
			continue
		}
		if len(word) > len(op.Keyword) {
			if word[len(op.Keyword)] != embeddedBegin {
				return nil, false, &MalformedOperatorError{Operator: op.Keyword, Syntax: op.Syntax}
			}
			return op, true, nil
		}
		return op, false, nil
	}
	return nil, false, &UnknownOperatorError{Word: word, Position: position}
}

func (r *Registry) find(keyword string) *Operator {
	for _, op := range r.ops {
		if op.Keyword == keyword {
			return op
		}
	}
	return nil
}

// DefaultRegistry returns the standard operator set. Order matters twice:
// prefix matching (CONTAINSTEXT before CONTAINS, <= before <) and nothing
// else; precedence is carried per operator.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Operator{Keyword: "AND", Precedence: precAnd, ExpectedRightWords: 1, Syntax: "<condition> AND <condition>", apply: applyAnd},
		&Operator{Keyword: "OR", Precedence: precOr, ExpectedRightWords: 1, Syntax: "<condition> OR <condition>", apply: applyOr},
		&Operator{Keyword: "NOT", Precedence: precNot, Unary: true, ExpectedRightWords: 1, Syntax: "NOT <condition>", apply: applyNot},
		&Operator{Keyword: "CONTAINSTEXT", Precedence: precComparison, ExpectedRightWords: 1,
			Syntax: "<field> CONTAINSTEXT[(<ignore-case>)] <string>", Configure: configureContainsText,
			apply: containsTextApply(true)},
		&Operator{Keyword: "CONTAINSALL", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<collection> CONTAINSALL <collection>", apply: applyContainsAll},
		&Operator{Keyword: "CONTAINS", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<collection> CONTAINS <value-or-condition>", ConditionOperand: true, apply: applyContains},
		&Operator{Keyword: "BETWEEN", Precedence: precComparison, ExpectedRightWords: 3, Syntax: "<field> BETWEEN <low> AND <high>", apply: applyBetween},
		&Operator{Keyword: "INSTANCEOF", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<record> INSTANCEOF <class>", apply: applyInstanceof},
		&Operator{Keyword: "MATCHES", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<field> MATCHES <regexp>", apply: applyMatches},
		&Operator{Keyword: "LIKE", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<field> LIKE <pattern>", apply: applyLike},
		&Operator{Keyword: "IS", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<field> IS [NOT] NULL", apply: applyIs},
		&Operator{Keyword: "IN", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<value> IN <collection>", apply: applyIn},
		&Operator{Keyword: "<>", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> <> <right>", apply: applyNotEquals},
		&Operator{Keyword: "<=", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> <= <right>", apply: compareApply("<=")},
		&Operator{Keyword: "<", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> < <right>", apply: compareApply("<")},
		&Operator{Keyword: ">=", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> >= <right>", apply: compareApply(">=")},
		&Operator{Keyword: ">", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> > <right>", apply: compareApply(">")},
		&Operator{Keyword: "!=", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> != <right>", apply: applyNotEquals},
		&Operator{Keyword: "=", Precedence: precComparison, ExpectedRightWords: 1, Syntax: "<left> = <right>", apply: applyEquals},
	)
}

func configureContainsText(params []string) (*Operator, error) {
	ignoreCase := true
	if len(params) > 1 {
		return nil, fmt.Errorf("expected at most one parameter, got %d", len(params))
	}
	if len(params) == 1 {
		v, err := strconv.ParseBool(strings.ToLower(params[0]))
		if err != nil {
			return nil, err
		}
		ignoreCase = v
	}
	op := &Operator{
		Keyword:            "CONTAINSTEXT",
		Precedence:         precComparison,
		ExpectedRightWords: 1,
		Syntax:             "<field> CONTAINSTEXT[(<ignore-case>)] <string>",
		Configure:          configureContainsText,
		apply:              containsTextApply(ignoreCase),
	}
	if !ignoreCase {
		op.Keyword = "CONTAINSTEXT(false)"
	}
	return op, nil
}

func applyAnd(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	l, err := toBool(left)
	if err != nil {
		return false, err
	}
	r, err := toBool(right)
	if err != nil {
		return false, err
	}
	return l && r, nil
}

func applyOr(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	l, err := toBool(left)
	if err != nil {
		return false, err
	}
	r, err := toBool(right)
	if err != nil {
		return false, err
	}
	return l || r, nil
}

func applyNot(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	r, err := toBool(right)
	if err != nil {
		return false, err
	}
	return !r, nil
}

func applyEquals(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	return valuesEqual(left, right), nil
}

func applyNotEquals(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	return !valuesEqual(left, right), nil
}

func compareApply(op string) applyFunc {
	return func(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
		if left == nil || right == nil {
			return false, nil
		}
		return compareValues(op, left, right)
	}
}

func applyBetween(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	bounds, ok := right.([]interface{})
	if !ok || len(bounds) != 3 {
		return false, fmt.Errorf("BETWEEN requires a lower and an upper bound")
	}
	// bounds[1] is the infix AND keyword, consumed but unused.
	if left == nil {
		return false, nil
	}
	low, err := compareValues(">=", left, bounds[0])
	if err != nil || !low {
		return false, err
	}
	return compareValues("<=", left, bounds[2])
}

func applyIn(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	items, ok := right.([]interface{})
	if !ok {
		return false, fmt.Errorf("IN requires a collection on the right side")
	}
	for _, item := range items {
		if valuesEqual(left, item) {
			return true, nil
		}
	}
	return false, nil
}

func applyContains(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	items, ok := left.([]interface{})
	if !ok {
		return false, nil
	}
	if sub, isCond := right.(*Condition); isCond {
		// Evaluate the embedded condition once per element.
		for _, item := range items {
			rec, ok := asRecord(item)
			if !ok {
				continue
			}
			v, err := sub.evaluate(&evalEnv{rec: rec, ctx: env.ctx, opts: env.opts})
			if err != nil {
				return false, err
			}
			if b, _ := toBool(v); b {
				return true, nil
			}
		}
		return false, nil
	}
	for _, item := range items {
		if valuesEqual(item, right) {
			return true, nil
		}
	}
	return false, nil
}

func applyContainsAll(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	items, ok := left.([]interface{})
	if !ok {
		return false, nil
	}
	wanted, ok := right.([]interface{})
	if !ok {
		wanted = []interface{}{right}
	}
	for _, w := range wanted {
		found := false
		for _, item := range items {
			if valuesEqual(item, w) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func containsTextApply(ignoreCase bool) applyFunc {
	return func(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
		needle, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("CONTAINSTEXT requires a string on the right side")
		}
		if ignoreCase {
			needle = strings.ToLower(needle)
		}
		match := func(v interface{}) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			if ignoreCase {
				s = strings.ToLower(s)
			}
			return strings.Contains(s, needle)
		}
		if items, ok := left.([]interface{}); ok {
			for _, item := range items {
				if match(item) {
					return true, nil
				}
			}
			return false, nil
		}
		return match(left), nil
	}
}

func applyLike(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	s, ok := left.(string)
	if !ok {
		return false, nil
	}
	pattern, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("LIKE requires a string pattern")
	}
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' {
			b.WriteString(".*")
		} else {
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
	}
	b.WriteByte('$')
	return regexp.MatchString(b.String(), s)
}

func applyMatches(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	s, ok := left.(string)
	if !ok {
		return false, nil
	}
	pattern, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("MATCHES requires a string pattern")
	}
	matched, err := regexp.MatchString(pattern, s)
	if err != nil {
		return false, fmt.Errorf("invalid regexp pattern: %w", err)
	}
	return matched, nil
}

func applyIs(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	if s, ok := right.(string); ok && strings.EqualFold(strings.TrimSpace(s), "not null") {
		return left != nil, nil
	}
	if right == nil {
		return left == nil, nil
	}
	return valuesEqual(left, right), nil
}

func applyInstanceof(env *evalEnv, cond *Condition, left, right interface{}) (bool, error) {
	className, ok := right.(string)
	if !ok {
		return false, fmt.Errorf("INSTANCEOF requires a class name")
	}
	if c, ok := left.(Classed); ok {
		return strings.EqualFold(c.ClassName(), className), nil
	}
	if env.rec != nil {
		if c, ok := env.rec.(Classed); ok {
			return strings.EqualFold(c.ClassName(), className), nil
		}
	}
	return false, nil
}

// valuesEqual compares two resolved values with numeric coercion, so a stored
// float64 equals an int64 literal.
func valuesEqual(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lf, ok := toFloat64(left); ok {
		if rf, ok := toFloat64(right); ok {
			return lf == rf
		}
		return false
	}
	if lr, ok := left.(RID); ok {
		if rr, ok := right.(RID); ok {
			return lr == rr
		}
		if s, ok := right.(string); ok {
			return lr.String() == s
		}
		return false
	}
	if rr, ok := right.(RID); ok {
		if s, ok := left.(string); ok {
			return rr.String() == s
		}
		return false
	}
	return reflect.DeepEqual(left, right)
}

// compareValues orders two values. Numbers compare numerically with coercion,
// strings lexically; anything else is an unsupported comparison.
func compareValues(op string, left, right interface{}) (bool, error) {
	if lf, lok := toFloat64(left); lok {
		rf, rok := toFloat64(right)
		if !rok {
			return false, fmt.Errorf("cannot compare %T with %T", left, right)
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	if ls, ok := left.(string); ok {
		rs, rok := right.(string)
		if !rok {
			return false, fmt.Errorf("cannot compare string with %T", right)
		}
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("unsupported comparison: %v %s %v", left, op, right)
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case nil:
		return false, nil
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}
