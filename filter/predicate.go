package filter

import (
	"fmt"
	"strings"
)

const (
	keywordSelect   = "SELECT"
	keywordTraverse = "TRAVERSE"
	keywordWhere    = "WHERE"
	keywordOrder    = "ORDER"
	keywordLimit    = "LIMIT"
	keywordSkip     = "SKIP"
	keywordAlias    = "AS"
)

// Options carries the injectable collaborators. A nil Operators falls back to
// the default registry; Schema and Executor may stay nil when targets and
// sub-queries are not used.
type Options struct {
	Operators *Registry
	Schema    Schema
	Executor  StatementExecutor
}

var defaultOperators = DefaultRegistry()

func (o *Options) registry() *Registry {
	if o.Operators == nil {
		return defaultOperators
	}
	return o.Operators
}

// Predicate parses a WHERE-style boolean expression into a reusable condition
// tree. Parsing mutates the embedded cursor through mutually recursive calls,
// so a Predicate under construction must not be shared; once built it is
// immutable except for its parameter value slots.
type Predicate struct {
	parserState

	opts   Options
	braces int

	root         *Condition
	params       []*Parameter
	paramsByName map[string]*Parameter
}

// NewPredicate parses text into a predicate. An empty or all-whitespace text
// yields a predicate that matches every record.
func NewPredicate(text string, opts Options) (*Predicate, error) {
	p := &Predicate{opts: opts}
	if err := p.parseText(text); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Predicate) parseText(text string) error {
	p.text = text
	p.upper = strings.ToUpper(text)
	p.pos = 0

	if !p.skipWhiteSpaces() {
		return nil
	}

	root, err := p.extractConditions()
	if err != nil {
		return wrapParseError(err, p.text, p.pos)
	}
	p.root = asCondition(root)
	return nil
}

func asCondition(v interface{}) *Condition {
	switch c := v.(type) {
	case nil:
		return nil
	case *Condition:
		return c
	}
	return &Condition{Left: v}
}

// Evaluate tests the predicate against a record. A predicate without a root
// condition matches unconditionally.
func (p *Predicate) Evaluate(rec Record, ctx Context) (bool, error) {
	if p.root == nil {
		return true, nil
	}
	return p.root.Evaluate(rec, ctx, p.opts)
}

// Root exposes the root condition; nil means "match everything".
func (p *Predicate) Root() *Condition {
	return p.root
}

// Parameters returns the declared parameters in declaration order.
func (p *Predicate) Parameters() []*Parameter {
	return p.params
}

// Bind late-binds values into the placeholder operands already embedded in
// the tree. Integer keys index parameters by declaration order; string keys
// match named parameters case-insensitively. Because use sites share the
// Parameter objects, re-binding affects every subsequent Evaluate without
// re-parsing. Bind must not race with Evaluate; callers needing that run
// them under their own lock.
func (p *Predicate) Bind(args map[interface{}]interface{}) {
	if len(p.params) == 0 || len(args) == 0 {
		return
	}
	for k, v := range args {
		switch key := k.(type) {
		case int:
			if key >= 0 && key < len(p.params) {
				p.params[key].SetValue(v)
			}
		case string:
			if par, ok := p.paramsByName[strings.ToLower(key)]; ok {
				par.SetValue(v)
			}
		}
	}
}

func (p *Predicate) String() string {
	if p.root != nil {
		return p.root.String()
	}
	return p.text
}

// addParameter registers a named parameter. The same name always yields the
// same Parameter instance, which is what makes re-binding reach every use
// site.
func (p *Predicate) addParameter(word string) (*Parameter, error) {
	name := word[1:]
	if !isAlphanumeric(name) {
		return nil, &InvalidParameterNameError{Name: name}
	}
	key := strings.ToLower(name)
	if par, ok := p.paramsByName[key]; ok {
		return par, nil
	}
	par := &Parameter{name: name}
	if p.paramsByName == nil {
		p.paramsByName = make(map[string]*Parameter)
	}
	p.paramsByName[key] = par
	p.params = append(p.params, par)
	return par, nil
}

// addPositionalParameter registers a fresh positional parameter; every '?'
// is its own slot.
func (p *Predicate) addPositionalParameter() *Parameter {
	par := &Parameter{}
	p.params = append(p.params, par)
	return par
}

// extractConditions builds the condition tree from the cursor onward. A text
// beginning with a sub-query keyword is captured whole as an opaque sub-query
// operand. Otherwise leaves come from extractCondition and operators chain
// them: an operator binding tighter than the accumulated condition descends
// into its right child (smaller syntactic scope), anything else wraps what
// has been parsed so far as the left operand of a new root, which chains
// equal-precedence operators left-associatively.
func (p *Predicate) extractConditions() (interface{}, error) {
	oldPos := p.pos
	if upper, _, ok := p.nextValue(true); ok && (upper == keywordSelect || upper == keywordTraverse) {
		text, end := p.scopeRemainder(oldPos)
		p.pos = end
		return &Subquery{Text: strings.TrimSpace(text)}, nil
	}
	p.pos = oldPos

	current, err := p.extractCondition()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	for {
		if !p.skipWhiteSpaces() {
			return current, nil
		}
		if p.currentChar() == embeddedEnd {
			return current, nil
		}

		op, err := p.extractConditionOperator()
		if err != nil {
			return nil, err
		}
		if op == nil {
			return current, nil
		}

		if current.Operator != nil && op.Precedence > current.Operator.Precedence {
			sub := &Condition{Left: current.Right, Operator: op}
			sub.Right, err = p.extractRightSide(op)
			if err != nil {
				return nil, err
			}
			current.Right = sub
		} else {
			parent := &Condition{Left: current, Operator: op}
			parent.Right, err = p.extractRightSide(op)
			if err != nil {
				return nil, err
			}
			current = parent
		}
	}
}

// extractRightSide parses what follows an operator found at chain level: a
// whole leaf condition for the logical connectives, bare operand words for a
// comparison that is completing a leaf.
func (p *Predicate) extractRightSide(op *Operator) (interface{}, error) {
	if op.Precedence >= precComparison {
		return p.extractConditionItem(false, op.ExpectedRightWords)
	}
	leaf, err := p.extractCondition()
	if err != nil {
		return nil, err
	}
	if leaf == nil {
		return nil, &ParseError{
			Message:  fmt.Sprintf("missing condition after operator %q", op.Keyword),
			Text:     p.text,
			Position: p.pos,
		}
	}
	return leaf, nil
}

// extractCondition parses one leaf condition: an operand, optionally an
// operator and its right-hand operand words. A trailing stop keyword aborts
// with no condition and the cursor rewound to just before it.
func (p *Predicate) extractCondition() (*Condition, error) {
	if !p.skipWhiteSpaces() {
		return nil, nil
	}

	start := p.pos
	upper, _, ok := p.nextValue(true)
	if !ok {
		return nil, nil
	}
	p.pos = start
	if isStopKeyword(upper) {
		return nil, nil
	}

	left, err := p.extractConditionItem(true, 1)
	if err != nil {
		return nil, err
	}
	if left == nil {
		return nil, nil
	}

	// A unary operator in operand position takes the next item as its only
	// child; the comparison that may follow attaches through precedence.
	if op, isOp := left.(*Operator); isOp && op.Unary {
		right, err := p.extractConditionItem(false, 1)
		if err != nil {
			return nil, err
		}
		return &Condition{Operator: op, Right: right}, nil
	}

	op, err := p.extractConditionOperator()
	if err != nil {
		return nil, err
	}
	if op == nil {
		return &Condition{Left: left}, nil
	}

	right, err := p.extractConditionItem(false, op.ExpectedRightWords)
	if err != nil {
		return nil, err
	}
	return &Condition{Left: left, Operator: op, Right: right}, nil
}

// extractConditionOperator scans the next operator, configuring it when an
// embedded parameter list is glued to the keyword. A closing parenthesis or
// a stop keyword yields no operator; the stop keyword is left unconsumed.
func (p *Predicate) extractConditionOperator() (*Operator, error) {
	if !p.skipWhiteSpaces() {
		return nil, nil
	}
	if p.currentChar() == embeddedEnd {
		return nil, nil
	}

	start := p.pos
	word, ok := p.nextOperatorWord()
	if !ok {
		return nil, nil
	}
	if isStopKeyword(word) {
		p.pos = start
		return nil, nil
	}

	proto, hasParams, err := p.opts.registry().Match(word, p.pos)
	if err != nil {
		return nil, err
	}
	if !hasParams {
		return proto, nil
	}

	paramBegin := p.pos - (len(word) - len(proto.Keyword))
	params, end, err := operatorParams(p.text, paramBegin)
	if err != nil {
		return nil, err
	}
	p.pos = end

	if proto.Configure == nil {
		return nil, &MalformedOperatorError{Operator: proto.Keyword, Syntax: proto.Syntax}
	}
	configured, err := proto.Configure(params)
	if err != nil {
		return nil, &MalformedOperatorError{Operator: proto.Keyword, Syntax: proto.Syntax}
	}
	return configured, nil
}

// extractConditionItem resolves expectedWords operand slots. See the package
// grammar: parenthesized groups recurse into the condition builder, bracketed
// runs become collections (possibly nested), any()/all() become field
// wildcards, NOT in operand position fuses into a negated literal, everything
// else goes through the value parser.
func (p *Predicate) extractConditionItem(allowOperator bool, expectedWords int) (interface{}, error) {
	result := make([]interface{}, expectedWords)

	for i := 0; i < expectedWords; i++ {
		upper, orig, ok := p.nextValue(true)
		if !ok {
			break
		}

		switch {
		case upper[0] == embeddedBegin:
			p.braces++
			p.pos = p.wordBegin + 1

			sub, err := p.extractConditions()
			if err != nil {
				return nil, err
			}
			if !p.skipWhiteSpaces() || p.currentChar() != embeddedEnd {
				return nil, &UnterminatedGroupingError{Position: p.wordBegin}
			}
			p.braces--
			p.pos++
			result[i] = sub

		case upper[0] == collectionBegin:
			p.pos = p.wordBegin
			items, end, err := splitCollection(p.text, p.pos)
			if err != nil {
				return nil, err
			}
			p.pos = end

			if len(items) > 0 && items[0] != "" && items[0][0] == collectionBegin {
				// Collection of collections.
				nested := make([]interface{}, len(items))
				for j, s := range items {
					subItems, _, err := splitCollection(s, 0)
					if err != nil {
						return nil, err
					}
					conv, err := p.convertCollectionItems(subItems)
					if err != nil {
						return nil, err
					}
					nested[j] = conv
				}
				result[i] = nested
			} else {
				conv, err := p.convertCollectionItems(items)
				if err != nil {
					return nil, err
				}
				result[i] = conv
			}

		case strings.HasPrefix(upper, "ANY("):
			item, err := parseWildcardItem(p, orig, true)
			if err != nil {
				return nil, err
			}
			result[i] = item

		case strings.HasPrefix(upper, "ALL("):
			item, err := parseWildcardItem(p, orig, false)
			if err != nil {
				return nil, err
			}
			result[i] = item

		default:
			if upper == "NOT" {
				if allowOperator {
					if op := p.opts.registry().find("NOT"); op != nil {
						return op, nil
					}
				}
				// Operand position: fuse with the following word into a
				// single negated literal phrase.
				if _, next, ok := p.nextValue(true); ok {
					orig = orig + " " + next
					if strings.HasSuffix(orig, ")") && !strings.ContainsRune(orig, '(') {
						orig = orig[:len(orig)-1]
						p.pos--
					}
				}
				result[i] = orig
				continue
			}

			// A function-call-less trailing ')' belongs to an enclosing
			// group; give it back.
			if strings.HasSuffix(orig, ")") && !strings.ContainsRune(orig, '(') {
				orig = orig[:len(orig)-1]
				p.pos--
			}

			v, err := p.parseValue(orig)
			if err != nil {
				return nil, err
			}
			result[i] = v
		}
	}

	if expectedWords == 1 {
		return result[0], nil
	}
	return result, nil
}

func (p *Predicate) convertCollectionItems(items []string) ([]interface{}, error) {
	coll := make([]interface{}, len(items))
	for i, s := range items {
		v, err := p.parseValue(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		coll[i] = v
	}
	return coll, nil
}

// scopeRemainder captures the rest of the current nesting scope: up to the
// unmatched closing parenthesis when inside a group, to the end of text
// otherwise.
func (p *Predicate) scopeRemainder(from int) (string, int) {
	if p.braces == 0 {
		return p.text[from:], len(p.text)
	}

	depth := 0
	var quote byte
	escaping := false
	for i := from; i < len(p.text); i++ {
		c := p.text[i]
		if quote != 0 {
			if escaping {
				escaping = false
			} else if c == '\\' {
				escaping = true
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case embeddedBegin:
			depth++
		case embeddedEnd:
			if depth == 0 {
				return p.text[from:i], i
			}
			depth--
		}
	}
	return p.text[from:], len(p.text)
}

func isStopKeyword(word string) bool {
	return word == keywordOrder || word == keywordLimit || word == keywordSkip
}
