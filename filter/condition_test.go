package filter

import (
	"testing"
)

func TestComparisonOperators(t *testing.T) {
	fields := map[string]interface{}{
		"age":   int64(30),
		"score": 4.5,
		"name":  "John",
	}

	cases := []struct {
		text string
		want bool
	}{
		{"age = 30", true},
		{"age = 31", false},
		{"age != 31", true},
		{"age <> 30", false},
		{"age > 29", true},
		{"age >= 30", true},
		{"age < 30", false},
		{"age <= 30", true},
		{"score > 4", true},
		{"score = 4.5", true},
		{"name = 'John'", true},
		{"name > 'Adam'", true},
		{"name < 'Adam'", false},
		{"missing = null", true},
		{"missing = 1", false},
		{"missing > 1", false},
	}

	for _, tc := range cases {
		if got := evalPredicate(t, tc.text, fields); got != tc.want {
			t.Errorf("%q: expected %v, got %v", tc.text, tc.want, got)
		}
	}
}

func TestNumericCoercion(t *testing.T) {
	// JSON payloads store whole numbers as float64; literals parse as int64.
	fields := map[string]interface{}{"n": float64(7)}
	if !evalPredicate(t, "n = 7", fields) {
		t.Error("expected a float64 field to equal an integer literal")
	}
	if !evalPredicate(t, "n < 7.5", fields) {
		t.Error("expected mixed numeric comparison to work")
	}
}

func TestBetween(t *testing.T) {
	fields := map[string]interface{}{"age": int64(30)}

	if !evalPredicate(t, "age BETWEEN 18 AND 65", fields) {
		t.Error("expected 30 between 18 and 65")
	}
	if !evalPredicate(t, "age BETWEEN 30 AND 30", fields) {
		t.Error("BETWEEN bounds are inclusive")
	}
	if evalPredicate(t, "age BETWEEN 31 AND 65", fields) {
		t.Error("expected 30 not between 31 and 65")
	}
	if evalPredicate(t, "missing BETWEEN 1 AND 2", fields) {
		t.Error("an absent field is never between bounds")
	}
}

func TestInOperator(t *testing.T) {
	fields := map[string]interface{}{
		"status": "open",
		"pair":   []interface{}{int64(1), int64(2)},
	}

	if !evalPredicate(t, "status IN ['open', 'closed']", fields) {
		t.Error("expected membership to hold")
	}
	if evalPredicate(t, "status IN ['a', 'b']", fields) {
		t.Error("expected membership to fail")
	}
	// Nested collections compare element-wise.
	if !evalPredicate(t, "pair IN [[1, 2], [3, 4]]", fields) {
		t.Error("expected the nested collection to match")
	}
	if evalPredicate(t, "pair IN [[2, 1], [3, 4]]", fields) {
		t.Error("nested collection order matters")
	}
}

func TestContains(t *testing.T) {
	fields := map[string]interface{}{
		"tags": []interface{}{"go", "db"},
		"addresses": []interface{}{
			map[string]interface{}{"city": "Rome"},
			map[string]interface{}{"city": "London"},
		},
	}

	if !evalPredicate(t, "tags CONTAINS 'go'", fields) {
		t.Error("expected value containment")
	}
	if evalPredicate(t, "tags CONTAINS 'rust'", fields) {
		t.Error("expected value containment to fail")
	}
	// A parenthesized condition runs once per element, each element acting
	// as the record.
	if !evalPredicate(t, "addresses CONTAINS (city = 'Rome')", fields) {
		t.Error("expected the per-element condition to match an element")
	}
	if evalPredicate(t, "addresses CONTAINS (city = 'Paris')", fields) {
		t.Error("expected the per-element condition to fail")
	}
	if evalPredicate(t, "missing CONTAINS 'x'", fields) {
		t.Error("CONTAINS on a non-collection is false")
	}
}

func TestContainsAll(t *testing.T) {
	fields := map[string]interface{}{"tags": []interface{}{"go", "db", "query"}}

	if !evalPredicate(t, "tags CONTAINSALL ['go', 'db']", fields) {
		t.Error("expected all wanted values present")
	}
	if evalPredicate(t, "tags CONTAINSALL ['go', 'rust']", fields) {
		t.Error("expected a missing wanted value to fail")
	}
}

func TestContainsText(t *testing.T) {
	fields := map[string]interface{}{"bio": "Wrote the Query engine"}

	if !evalPredicate(t, "bio CONTAINSTEXT 'query'", fields) {
		t.Error("expected case-insensitive containment by default")
	}
	if evalPredicate(t, "bio CONTAINSTEXT(false) 'query'", fields) {
		t.Error("expected case-sensitive mode to miss")
	}
	if !evalPredicate(t, "bio CONTAINSTEXT(false) 'Query'", fields) {
		t.Error("expected case-sensitive mode to hit the exact casing")
	}
}

func TestLikeAndMatches(t *testing.T) {
	fields := map[string]interface{}{"name": "Johnson"}

	if !evalPredicate(t, "name LIKE 'John%'", fields) {
		t.Error("expected prefix pattern to match")
	}
	if !evalPredicate(t, "name LIKE '%son'", fields) {
		t.Error("expected suffix pattern to match")
	}
	if evalPredicate(t, "name LIKE 'John'", fields) {
		t.Error("LIKE without wildcards is a full match")
	}
	if !evalPredicate(t, "name MATCHES 'J.*n$'", fields) {
		t.Error("expected the regular expression to match")
	}
	if evalPredicate(t, "name MATCHES '^son'", fields) {
		t.Error("expected the anchored expression to miss")
	}
}

func TestIsNull(t *testing.T) {
	fields := map[string]interface{}{"name": "John", "ghost": nil}

	if evalPredicate(t, "name IS null", fields) {
		t.Error("a present field is not null")
	}
	if !evalPredicate(t, "name IS not null", fields) {
		t.Error("expected IS NOT NULL on a present field")
	}
	if !evalPredicate(t, "missing IS null", fields) {
		t.Error("an absent field is null")
	}
	if evalPredicate(t, "missing IS not null", fields) {
		t.Error("an absent field is not NOT NULL")
	}
}

func TestInstanceof(t *testing.T) {
	p, err := NewPredicate("@class INSTANCEOF 'Person'", Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ok, err := p.Evaluate(&testRecord{class: "Person"}, Context{})
	if err != nil || !ok {
		t.Errorf("expected the record class to match: %v", err)
	}
	ok, _ = p.Evaluate(&testRecord{class: "Animal"}, Context{})
	if ok {
		t.Error("expected a different class to miss")
	}
}

func TestRIDComparison(t *testing.T) {
	rec := &testRecord{rid: RID{ClusterID: 12, Position: 5}}

	p, err := NewPredicate("@rid = #12:5", Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ok, err := p.Evaluate(rec, Context{})
	if err != nil || !ok {
		t.Errorf("expected the identity to match its literal: %v", err)
	}

	p, _ = NewPredicate("@rid = #12:6", Options{})
	if ok, _ := p.Evaluate(rec, Context{}); ok {
		t.Error("expected a different position to miss")
	}
}

func TestFieldModifiers(t *testing.T) {
	fields := map[string]interface{}{
		"name": "  John  ",
		"tags": []interface{}{"a", "b", "c"},
	}

	cases := []struct {
		text string
		want bool
	}{
		{"name.trim() = 'John'", true},
		{"name.trim().toUpperCase() = 'JOHN'", true},
		{"name.trim().toLowerCase() = 'john'", true},
		{"tags.size() = 3", true},
		{"name.trim().length() = 4", true},
		{"name.trim().append(' Doe') = 'John Doe'", true},
	}
	for _, tc := range cases {
		if got := evalPredicate(t, tc.text, fields); got != tc.want {
			t.Errorf("%q: expected %v, got %v", tc.text, tc.want, got)
		}
	}

	p, err := NewPredicate("name.explode() = 1", Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := p.Evaluate(&testRecord{fields: fields}, Context{}); err == nil {
		t.Error("expected an error for an unknown modifier")
	}
}

func TestDottedPaths(t *testing.T) {
	fields := map[string]interface{}{
		"address": map[string]interface{}{
			"city": map[string]interface{}{"name": "Rome"},
		},
	}
	if !evalPredicate(t, "address.city.name = 'Rome'", fields) {
		t.Error("expected the dotted path to resolve")
	}
	if !evalPredicate(t, "address.city.zip = null", fields) {
		t.Error("expected an absent nested field to be null")
	}
}

func TestWildcardAny(t *testing.T) {
	fields := map[string]interface{}{"a": int64(1), "b": int64(5)}

	if !evalPredicate(t, "any() = 5", fields) {
		t.Error("expected any() to find the matching field")
	}
	if evalPredicate(t, "any() = 9", fields) {
		t.Error("expected any() to miss")
	}
	// A record with no fields never satisfies any().
	if evalPredicate(t, "any() = null", map[string]interface{}{}) {
		t.Error("any() over no fields must be false")
	}
}

func TestWildcardAll(t *testing.T) {
	fields := map[string]interface{}{"a": int64(5), "b": int64(5)}

	if !evalPredicate(t, "all() = 5", fields) {
		t.Error("expected all() to hold over uniform fields")
	}
	if evalPredicate(t, "all() = 5", map[string]interface{}{"a": int64(5), "b": int64(6)}) {
		t.Error("expected all() to fail on one mismatch")
	}
	// A record with no fields satisfies all() vacuously.
	if !evalPredicate(t, "all() = 5", map[string]interface{}{}) {
		t.Error("all() over no fields must be true")
	}
}

func TestWildcardWithChain(t *testing.T) {
	fields := map[string]interface{}{
		"first": map[string]interface{}{"kind": "x"},
		"last":  map[string]interface{}{"kind": "y"},
	}
	if !evalPredicate(t, "any(kind) = 'y'", fields) {
		t.Error("expected the chained wildcard to reach into each field")
	}
	if evalPredicate(t, "all(kind) = 'y'", fields) {
		t.Error("expected the chained all() to fail on the mismatch")
	}
}

func TestConditionString(t *testing.T) {
	p, err := NewPredicate("n = 1 AND s = 'it\\'s'", Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := `(n = 1) AND (s = 'it\'s')`
	if got := p.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
