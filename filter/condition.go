package filter

import (
	"strings"
)

// Condition is one node of the expression tree: left operand, operator, right
// operand. A nil operator makes the node a pass-through around its left
// operand, which is how bare values and fully parenthesized groups sit in the
// tree. Unary operators keep their single child on the right and leave the
// left unused.
type Condition struct {
	Left     interface{}
	Operator *Operator
	Right    interface{}
}

// Evaluate tests the condition against a record. Evaluation is read-only: no
// operator may mutate the record or the context.
func (c *Condition) Evaluate(rec Record, ctx Context, opts Options) (bool, error) {
	v, err := c.evaluate(&evalEnv{rec: rec, ctx: ctx, opts: opts})
	if err != nil {
		return false, err
	}
	return toBool(v)
}

func (c *Condition) evaluate(env *evalEnv) (interface{}, error) {
	if c.Operator == nil {
		// Pass-through node. A bare sub-query is truthy when it yields
		// at least one record.
		if sq, ok := c.Left.(*Subquery); ok {
			rs, err := sq.run(env)
			if err != nil {
				return nil, err
			}
			return len(rs.Records()) > 0, nil
		}
		return resolveValue(c.Left, env)
	}

	// The any()/all() wildcards quantify the operator over every field of
	// the record.
	switch wildcard := c.Left.(type) {
	case *ItemFieldAny:
		return c.quantify(env, wildcard.chain, true)
	case *ItemFieldAll:
		return c.quantify(env, wildcard.chain, false)
	}

	var left interface{}
	var err error
	if !c.Operator.Unary {
		left, err = resolveValue(c.Left, env)
		if err != nil {
			return nil, err
		}
	}

	right, err := c.resolveRight(env)
	if err != nil {
		return nil, err
	}

	return c.Operator.apply(env, c, left, right)
}

func (c *Condition) resolveRight(env *evalEnv) (interface{}, error) {
	if c.Operator.ConditionOperand {
		if sub, ok := c.Right.(*Condition); ok {
			// Handed to the operator unevaluated; it runs the condition
			// against each collection element.
			return sub, nil
		}
	}
	return resolveValue(c.Right, env)
}

// quantify applies the operator once per record field. any stops at the first
// satisfied field and fails on a fieldless record; all stops at the first
// unsatisfied field and succeeds vacuously on a fieldless record.
func (c *Condition) quantify(env *evalEnv, chain *ItemField, any bool) (interface{}, error) {
	if env.rec == nil {
		return !any, nil
	}

	right, err := c.resolveRight(env)
	if err != nil {
		return nil, err
	}

	for _, name := range env.rec.FieldNames() {
		base, _ := env.rec.FieldValue(name)
		left, err := chain.applyTo(base, env)
		if err != nil {
			return nil, err
		}
		ok, err := c.Operator.apply(env, c, left, right)
		if err != nil {
			return nil, err
		}
		if any && ok {
			return true, nil
		}
		if !any && !ok {
			return false, nil
		}
	}
	return !any, nil
}

// String renders the condition back to parseable query text.
func (c *Condition) String() string {
	if c.Operator == nil {
		return renderValue(c.Left)
	}
	if c.Operator.Unary {
		return c.Operator.Keyword + " " + renderValue(c.Right)
	}
	return renderValue(c.Left) + " " + c.Operator.Keyword + " " + c.renderRight()
}

func (c *Condition) renderRight() string {
	// Multi-word operands (BETWEEN bounds) are laid out inline, not as a
	// collection.
	if c.Operator.ExpectedRightWords > 1 {
		if words, ok := c.Right.([]interface{}); ok {
			parts := make([]string, len(words))
			for i, w := range words {
				parts[i] = renderValue(w)
			}
			return strings.Join(parts, " ")
		}
	}
	return renderValue(c.Right)
}
