// Package filter implements the embedded predicate language of the database:
// a WHERE-style boolean expression compiled once into a re-evaluable condition
// tree, plus extraction of what the query runs over (records, a sub-query,
// classes, clusters or an index). The parser is a manual, character-level
// scanner; there is no grammar generator behind it.
package filter

import (
	"strings"
)

const (
	clusterPrefix = "CLUSTER:"
	indexPrefix   = "INDEX:"
	classPrefix   = "CLASS:"
)

// Filter is the parsed query artifact: an optional target specification plus
// an optional predicate. It is built once from text and evaluated any number
// of times; only parameter bindings may change afterwards.
type Filter struct {
	Predicate

	targetRecords  []RID
	targetQuery    *Subquery
	targetClasses  map[string]string
	targetClusters map[string]string
	targetIndex    string
}

// Parse builds a Filter from "[target] [WHERE <predicate>] ...". Trailing
// ORDER/LIMIT/SKIP clauses are recognized only as stop markers and left
// unconsumed for the outer statement parser.
func Parse(text string, opts Options) (*Filter, error) {
	f := &Filter{}
	f.opts = opts
	f.text = text
	f.upper = strings.ToUpper(text)

	if err := f.extractTargets(); err != nil {
		return nil, wrapParseError(err, f.text, f.pos)
	}

	if f.skipWhiteSpaces() {
		start := f.pos
		upper, _, ok := f.nextValue(true)
		switch {
		case ok && upper == keywordWhere:
			root, err := f.extractConditions()
			if err != nil {
				return nil, wrapParseError(err, f.text, f.pos)
			}
			f.root = asCondition(root)
		case ok:
			f.pos = start
		}
	}

	return f, nil
}

// TargetRecords returns the explicit record identifiers the query runs over,
// if the target was a RID or a bracketed RID list.
func (f *Filter) TargetRecords() []RID {
	return f.targetRecords
}

// TargetQuery returns the embedded sub-query target, if any.
func (f *Filter) TargetQuery() *Subquery {
	return f.targetQuery
}

// TargetClasses maps targeted class names to their aliases.
func (f *Filter) TargetClasses() map[string]string {
	return f.targetClasses
}

// TargetClusters maps targeted cluster names to their aliases.
func (f *Filter) TargetClusters() map[string]string {
	return f.targetClusters
}

// TargetIndex returns the targeted index name, if any.
func (f *Filter) TargetIndex() string {
	return f.targetIndex
}

// ResolveTargetQuery runs the sub-query target through the configured
// statement executor, merging the sub-query's context into ctx (existing keys
// win). It returns nil records when the target is not a sub-query.
func (f *Filter) ResolveTargetQuery(ctx Context) ([]Record, error) {
	if f.targetQuery == nil {
		return nil, nil
	}
	rs, err := f.targetQuery.run(&evalEnv{ctx: ctx, opts: f.opts})
	if err != nil {
		return nil, err
	}
	return rs.Records(), nil
}

// extractTargets classifies the query subject. Exactly one of the target
// kinds ends up populated.
func (f *Filter) extractTargets() error {
	if !f.skipWhiteSpaces() {
		return &ParseError{Message: "no query target found", Text: f.text, Position: 0}
	}

	c := f.currentChar()
	switch {
	case c == ridMarker || isDigit(c):
		// Single record identifier.
		_, orig, ok := f.nextValue(true)
		if !ok {
			return &ParseError{Message: "no valid record identifier found", Text: f.text, Position: f.pos}
		}
		rid, err := ParseRID(orig)
		if err != nil {
			return err
		}
		f.targetRecords = []RID{rid}

	case c == embeddedBegin:
		// Embedded sub-query.
		sub, end, err := embeddedText(f.text, f.pos)
		if err != nil {
			return err
		}
		f.pos = end
		f.targetQuery = &Subquery{Text: strings.TrimSpace(sub)}

	case c == collectionBegin:
		// Bracketed list of record identifiers.
		items, end, err := splitCollection(f.text, f.pos)
		if err != nil {
			return err
		}
		f.pos = end
		f.targetRecords = make([]RID, 0, len(items))
		for _, item := range items {
			rid, err := ParseRID(strings.TrimSpace(item))
			if err != nil {
				return err
			}
			f.targetRecords = append(f.targetRecords, rid)
		}

	default:
		return f.extractNamedTargets()
	}
	return nil
}

// extractNamedTargets reads class/cluster/index names with optional AS
// aliases until a clause keyword, unexpected grouping or end of text. An
// index target is exclusive and ends the loop immediately; mixing target
// kinds is an error.
func (f *Filter) extractNamedTargets() error {
	var lastCluster bool
	var lastName string

	for f.skipWhiteSpaces() {
		if c := f.currentChar(); c == embeddedBegin || c == collectionBegin {
			break
		}

		start := f.pos
		upper, orig, ok := f.nextValue(true)
		if !ok {
			break
		}
		if upper == keywordWhere || isStopKeyword(upper) {
			f.pos = start
			break
		}

		if upper == keywordAlias {
			_, alias, ok := f.nextValue(true)
			if !ok {
				return &ParseError{Message: "alias not found", Text: f.text, Position: f.pos}
			}
			if lastName == "" {
				return &ParseError{Message: "alias with no preceding target", Text: f.text, Position: start}
			}
			if lastCluster {
				f.targetClusters[lastName] = alias
			} else {
				f.targetClasses[lastName] = alias
			}
			continue
		}

		switch {
		case strings.HasPrefix(upper, clusterPrefix):
			if f.targetClasses != nil || f.targetIndex != "" {
				return &ParseError{Message: "cannot mix query target kinds", Text: f.text, Position: start}
			}
			name := orig[len(clusterPrefix):]
			if f.targetClusters == nil {
				f.targetClusters = make(map[string]string)
			}
			f.targetClusters[name] = name
			lastCluster, lastName = true, name

		case strings.HasPrefix(upper, indexPrefix):
			if f.targetClasses != nil || f.targetClusters != nil {
				return &ParseError{Message: "cannot mix query target kinds", Text: f.text, Position: start}
			}
			f.targetIndex = orig[len(indexPrefix):]
			return nil

		default:
			if f.targetClusters != nil || f.targetIndex != "" {
				return &ParseError{Message: "cannot mix query target kinds", Text: f.text, Position: start}
			}
			name := orig
			if strings.HasPrefix(upper, classPrefix) {
				name = orig[len(classPrefix):]
			}
			if f.opts.Schema == nil {
				return &ClassNotFoundError{Name: name}
			}
			cls, found := f.opts.Schema.FindClass(name)
			if !found {
				return &ClassNotFoundError{Name: name}
			}
			if f.targetClasses == nil {
				f.targetClasses = make(map[string]string)
			}
			f.targetClasses[cls.Name()] = name
			lastCluster, lastName = false, cls.Name()
		}
	}
	return nil
}
