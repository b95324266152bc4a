package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is the minimal view of a stored record a predicate needs: field
// lookup by dotted path and enumeration of the top-level field names (for the
// any()/all() wildcards). Absent fields report ok == false, never an error.
type Record interface {
	FieldValue(path string) (interface{}, bool)
	FieldNames() []string
}

// Identifiable is implemented by records that carry a record identifier.
// Sub-query results expose their identity so link fields compare by RID.
type Identifiable interface {
	Identity() RID
}

// Classed is implemented by schema-aware records; INSTANCEOF tests against it.
type Classed interface {
	ClassName() string
}

// Schema resolves class names during target extraction.
type Schema interface {
	FindClass(name string) (Class, bool)
}

// Class is an opaque schema class handle.
type Class interface {
	Name() string
}

// ResultSet is what an embedded sub-query yields: its records plus the
// evaluation context the sub-query built for itself.
type ResultSet interface {
	Records() []Record
	Context() Context
}

// StatementExecutor runs embedded sub-queries on behalf of the filter. The
// call is synchronous and opaque; any blocking I/O happens behind it.
type StatementExecutor interface {
	Execute(text string) (ResultSet, error)
}

// Context is the evaluation context threaded through a query and its
// sub-queries.
type Context map[string]interface{}

// Merge adopts entries from other. Keys already present win, so an outer
// context is never clobbered by a sub-query's.
func (c Context) Merge(other Context) {
	for k, v := range other {
		if _, exists := c[k]; !exists {
			c[k] = v
		}
	}
}

// RID addresses a stored record: cluster id plus position within the cluster.
type RID struct {
	ClusterID int
	Position  int64
}

// ParseRID parses the "#<cluster>:<position>" literal form. The leading '#'
// is optional.
func ParseRID(s string) (RID, error) {
	t := strings.TrimPrefix(s, "#")
	sep := strings.IndexByte(t, ':')
	if sep < 0 {
		return RID{}, fmt.Errorf("invalid record identifier %q", s)
	}
	cluster, err := strconv.Atoi(t[:sep])
	if err != nil {
		return RID{}, fmt.Errorf("invalid record identifier %q: %w", s, err)
	}
	position, err := strconv.ParseInt(t[sep+1:], 10, 64)
	if err != nil {
		return RID{}, fmt.Errorf("invalid record identifier %q: %w", s, err)
	}
	return RID{ClusterID: cluster, Position: position}, nil
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.ClusterID, r.Position)
}

// mapRecord adapts a plain map (an embedded document) to the Record
// interface so CONTAINS can evaluate conditions against collection elements.
type mapRecord map[string]interface{}

func (m mapRecord) FieldValue(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(m)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (m mapRecord) FieldNames() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	return names
}

func asRecord(v interface{}) (Record, bool) {
	switch r := v.(type) {
	case Record:
		return r, true
	case map[string]interface{}:
		return mapRecord(r), true
	}
	return nil, false
}
