package orientdb

import (
	"sort"
	"testing"
)

func TestDocumentFields(t *testing.T) {
	doc, err := NewDocument("Person", []byte(`{
		"name": "John",
		"age": 30,
		"active": true,
		"tags": ["go", "db"],
		"address": {"city": {"name": "Rome"}}
	}`))
	if err != nil {
		t.Fatalf("Failed to build document: %v", err)
	}

	if v, ok := doc.FieldValue("name"); !ok || v != "John" {
		t.Errorf("name: expected John, got %v", v)
	}
	if v, _ := doc.FieldValue("age"); v != float64(30) {
		t.Errorf("age: expected float64 30, got %T %v", v, v)
	}
	if v, _ := doc.FieldValue("active"); v != true {
		t.Errorf("active: expected true, got %v", v)
	}
	if v, _ := doc.FieldValue("address.city.name"); v != "Rome" {
		t.Errorf("dotted path: expected Rome, got %v", v)
	}
	if _, ok := doc.FieldValue("address.city.zip"); ok {
		t.Error("absent nested field must report ok == false")
	}
	if v, ok := doc.FieldValue("tags"); !ok {
		t.Error("tags: expected a value")
	} else if items, ok := v.([]interface{}); !ok || len(items) != 2 {
		t.Errorf("tags: expected a 2-element collection, got %v", v)
	}

	names := doc.FieldNames()
	sort.Strings(names)
	want := []string{"active", "address", "age", "name", "tags"}
	if len(names) != len(want) {
		t.Fatalf("expected field names %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("field name %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	if doc.ClassName() != "Person" {
		t.Errorf("expected class Person, got %s", doc.ClassName())
	}
}

func TestDocumentRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`[1, 2]`, `"text"`, `42`, `{broken`} {
		if _, err := NewDocument("X", []byte(payload)); err == nil {
			t.Errorf("expected error for payload %s", payload)
		}
	}
}

func TestDocumentAsFilterRecord(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if _, err := db.CreateClass("Person"); err != nil {
		t.Fatalf("Failed to create class: %v", err)
	}

	doc, err := db.Insert("Person", []byte(`{"name":"John"}`))
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if doc.Identity() == (RID{}) {
		t.Error("expected an assigned identity after insert")
	}
}
