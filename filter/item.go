package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// evalEnv bundles what operand resolution needs at evaluation time.
type evalEnv struct {
	rec  Record
	ctx  Context
	opts Options
}

// Parameter is a named or positional placeholder declared in the query text.
// Every occurrence of the same name in the tree shares one Parameter, so
// re-binding is visible at every use site without re-parsing.
type Parameter struct {
	name  string // empty for positional parameters
	value interface{}
}

func (p *Parameter) Name() string {
	return p.name
}

func (p *Parameter) Value() interface{} {
	return p.value
}

func (p *Parameter) SetValue(v interface{}) {
	p.value = v
}

func (p *Parameter) String() string {
	if p.name == "" {
		return "?"
	}
	return ":" + p.name
}

// fieldCall is one method-call-style modifier on a field path.
type fieldCall struct {
	name string
	args []interface{}
}

// ItemField is a field reference: a dotted path into the record, optionally
// followed by modifier calls ("name.toUpperCase()", "tags.length()").
type ItemField struct {
	Path  string
	calls []fieldCall
}

// parseItemField splits a scanned word into path segments and modifier calls.
// Call arguments go through the operand resolver again, so they may be
// literals, parameters or further field references.
func parseItemField(p *Predicate, word string) (*ItemField, error) {
	item := &ItemField{}
	var pathParts []string

	for _, seg := range splitPath(word) {
		open := strings.IndexByte(seg, '(')
		if open < 0 {
			if len(item.calls) > 0 {
				return nil, fmt.Errorf("field segment %q cannot follow a modifier call", seg)
			}
			pathParts = append(pathParts, seg)
			continue
		}
		if !strings.HasSuffix(seg, ")") {
			return nil, &UnterminatedGroupingError{Position: p.pos}
		}
		call := fieldCall{name: seg[:open]}
		inner := strings.TrimSpace(seg[open+1 : len(seg)-1])
		if inner != "" {
			for _, arg := range splitArgs(inner) {
				v, err := p.parseValue(strings.TrimSpace(arg))
				if err != nil {
					return nil, err
				}
				call.args = append(call.args, v)
			}
		}
		item.calls = append(item.calls, call)
	}

	item.Path = strings.Join(pathParts, ".")
	return item, nil
}

// splitPath splits on dots at zero parenthesis depth, keeping call arguments
// attached to their segment.
func splitPath(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '.':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func splitArgs(s string) []string {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}
	return append(args, s[start:])
}

// resolve reads the field from the record and applies the modifier chain.
// An absent field resolves to nil, which is a valid comparison value.
func (f *ItemField) resolve(env *evalEnv) (interface{}, error) {
	var v interface{}
	switch {
	case f.Path == "":
		v = nil
	case f.Path == "@rid":
		if id, ok := env.rec.(Identifiable); ok {
			v = id.Identity()
		}
	case f.Path == "@class":
		if c, ok := env.rec.(Classed); ok {
			v = c.ClassName()
		}
	default:
		if env.rec != nil {
			v, _ = env.rec.FieldValue(f.Path)
		}
	}
	return f.applyCalls(v, env)
}

// applyTo applies the whole chain to an explicit base value; the any()/all()
// wildcards use it once per record field.
func (f *ItemField) applyTo(base interface{}, env *evalEnv) (interface{}, error) {
	v := base
	if f.Path != "" {
		rec, ok := asRecord(base)
		if !ok {
			return nil, nil
		}
		v, _ = rec.FieldValue(f.Path)
	}
	return f.applyCalls(v, env)
}

func (f *ItemField) applyCalls(v interface{}, env *evalEnv) (interface{}, error) {
	var err error
	for _, call := range f.calls {
		v, err = applyFieldCall(v, call, env)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

func applyFieldCall(v interface{}, call fieldCall, env *evalEnv) (interface{}, error) {
	switch strings.ToLower(call.name) {
	case "touppercase":
		if s, ok := v.(string); ok {
			return strings.ToUpper(s), nil
		}
		return v, nil
	case "tolowercase":
		if s, ok := v.(string); ok {
			return strings.ToLower(s), nil
		}
		return v, nil
	case "trim":
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return v, nil
	case "length", "size":
		switch t := v.(type) {
		case string:
			return int64(len(t)), nil
		case []interface{}:
			return int64(len(t)), nil
		case map[string]interface{}:
			return int64(len(t)), nil
		case nil:
			return int64(0), nil
		}
		return nil, fmt.Errorf("length() not supported for %T", v)
	case "append":
		if len(call.args) != 1 {
			return nil, fmt.Errorf("append() takes exactly one argument")
		}
		arg, err := resolveValue(call.args[0], env)
		if err != nil {
			return nil, err
		}
		return stringify(v) + stringify(arg), nil
	case "asstring":
		return stringify(v), nil
	}
	return nil, fmt.Errorf("unknown field modifier %q", call.name)
}

func (f *ItemField) String() string {
	parts := make([]string, 0, 1+len(f.calls))
	if f.Path != "" {
		parts = append(parts, f.Path)
	}
	for _, call := range f.calls {
		args := make([]string, len(call.args))
		for i, a := range call.args {
			args[i] = renderValue(a)
		}
		parts = append(parts, call.name+"("+strings.Join(args, ", ")+")")
	}
	return strings.Join(parts, ".")
}

// ItemFieldAny matches when any field of the record, run through the chain,
// satisfies the enclosing operator. Evaluation stops at the first match; a
// record with no fields never matches.
type ItemFieldAny struct {
	chain *ItemField
}

// ItemFieldAll matches when every field of the record satisfies the enclosing
// operator. A record with no fields matches vacuously.
type ItemFieldAll struct {
	chain *ItemField
}

func (f *ItemFieldAny) String() string { return "any(" + f.chain.String() + ")" }
func (f *ItemFieldAll) String() string { return "all(" + f.chain.String() + ")" }

func parseWildcardItem(p *Predicate, word string, any bool) (interface{}, error) {
	open := strings.IndexByte(word, '(')
	if open < 0 || !strings.HasSuffix(word, ")") {
		return nil, &UnterminatedGroupingError{Position: p.pos}
	}
	inner := strings.TrimSpace(word[open+1 : len(word)-1])
	chain := &ItemField{}
	if inner != "" {
		var err error
		chain, err = parseItemField(p, inner)
		if err != nil {
			return nil, err
		}
	}
	if any {
		return &ItemFieldAny{chain: chain}, nil
	}
	return &ItemFieldAll{chain: chain}, nil
}

// Subquery is an opaque embedded statement; the external executor runs it.
type Subquery struct {
	Text string
}

func (s *Subquery) String() string {
	return "(" + s.Text + ")"
}

// run executes the sub-query and merges its context into the outer one
// (existing outer keys win).
func (s *Subquery) run(env *evalEnv) (ResultSet, error) {
	if env.opts.Executor == nil {
		return nil, fmt.Errorf("no statement executor configured for sub-query %q", s.Text)
	}
	rs, err := env.opts.Executor.Execute(s.Text)
	if err != nil {
		return nil, err
	}
	if env.ctx != nil {
		env.ctx.Merge(rs.Context())
	}
	return rs, nil
}

// resolveValue resolves one operand to a concrete value for the current
// record. Conditions evaluate recursively; sub-queries run and contribute
// their records' identities; collections resolve element-wise.
func resolveValue(v interface{}, env *evalEnv) (interface{}, error) {
	switch item := v.(type) {
	case *ItemField:
		return item.resolve(env)
	case *Parameter:
		return item.Value(), nil
	case *Condition:
		return item.evaluate(env)
	case *Subquery:
		rs, err := item.run(env)
		if err != nil {
			return nil, err
		}
		records := rs.Records()
		out := make([]interface{}, 0, len(records))
		for _, rec := range records {
			if id, ok := rec.(Identifiable); ok {
				out = append(out, id.Identity())
			} else {
				out = append(out, rec)
			}
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(item))
		for i, elem := range item {
			r, err := resolveValue(elem, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// parseValue classifies one scanned word into an operand. Any shape nothing
// else claims falls back to a plain string literal.
func (p *Predicate) parseValue(word string) (interface{}, error) {
	if word == "" {
		return "", nil
	}
	if isQuoted(word) {
		return decodeString(word[1 : len(word)-1]), nil
	}

	upper := strings.ToUpper(word)
	switch upper {
	case "NULL":
		return nil, nil
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}

	c := word[0]
	if c == ridMarker && strings.ContainsRune(word, ':') {
		return ParseRID(word)
	}
	if c == parameterNamed {
		return p.addParameter(word)
	}
	if word == string(parameterPos) {
		return p.addPositionalParameter(), nil
	}
	if c == '-' || c == '+' || isDigit(c) {
		if n, err := strconv.ParseInt(word, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return f, nil
		}
	}
	if isLetter(c) || c == '$' || c == '@' || c == '_' {
		return parseItemField(p, word)
	}
	return word, nil
}

func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// renderValue renders an operand back to query text. Re-parsing the result
// yields an equivalent tree, which is what the round-trip contract asks for.
func renderValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + encodeString(t) + "'"
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case RID:
		return t.String()
	case *Parameter:
		return t.String()
	case *ItemField:
		return t.String()
	case *ItemFieldAny:
		return t.String()
	case *ItemFieldAll:
		return t.String()
	case *Subquery:
		return t.String()
	case *Condition:
		return "(" + t.String() + ")"
	case []interface{}:
		parts := make([]string, len(t))
		for i, elem := range t {
			parts[i] = renderValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
