package orientdb

import (
	"path/filepath"
	"testing"
)

func TestSchemaClasses(t *testing.T) {
	s := NewSchema()

	cls, err := s.CreateClass("Person")
	if err != nil {
		t.Fatalf("Failed to create class: %v", err)
	}
	if cls.Name() != "Person" || cls.ClusterID() == 0 {
		t.Errorf("unexpected class: %+v", cls)
	}

	// Lookup is case-insensitive, the registered casing wins.
	found, ok := s.FindClass("pERSON")
	if !ok || found.Name() != "Person" {
		t.Errorf("expected case-insensitive lookup, got %v %v", found, ok)
	}

	if _, err := s.CreateClass("person"); err == nil {
		t.Error("expected duplicate class creation to fail")
	}

	name, ok := s.ClusterName(cls.ClusterID())
	if !ok || name != "Person" {
		t.Errorf("expected the same-named cluster, got %q", name)
	}
	if id, ok := s.ClusterID("person"); !ok || id != cls.ClusterID() {
		t.Errorf("expected cluster id %d, got %d", cls.ClusterID(), id)
	}
}

func TestSchemaPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")

	s := NewSchema()
	s.CreateClass("Person")
	s.CreateClass("Account")
	s.AddCluster("audit")
	if err := s.Save(path); err != nil {
		t.Fatalf("Failed to save schema: %v", err)
	}

	loaded, err := LoadSchema(path)
	if err != nil {
		t.Fatalf("Failed to load schema: %v", err)
	}
	for _, name := range []string{"Person", "Account"} {
		if _, ok := loaded.FindClass(name); !ok {
			t.Errorf("class %s lost across reload", name)
		}
	}
	if _, ok := loaded.ClusterID("audit"); !ok {
		t.Error("standalone cluster lost across reload")
	}

	// New clusters must not reuse persisted ids.
	id, err := loaded.AddCluster("fresh")
	if err != nil {
		t.Fatalf("Failed to add cluster: %v", err)
	}
	for _, existing := range []string{"Person", "Account", "audit"} {
		other, _ := loaded.ClusterID(existing)
		if other == id {
			t.Errorf("cluster id %d reused for %s", id, existing)
		}
	}
}

func TestLoadSchemaMissingFile(t *testing.T) {
	s, err := LoadSchema(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file must yield a fresh schema: %v", err)
	}
	if _, ok := s.FindClass("anything"); ok {
		t.Error("fresh schema must be empty")
	}
}
