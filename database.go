package orientdb

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonasrmichel/orientdb-android/filter"
)

/*
Database is the embedded store: a schema, one record file per cluster, and a
query surface built on the filter package. All methods are safe for
concurrent use.
*/
type Database struct {
	mutex    sync.Mutex
	dir      string
	schema   *Schema
	clusters map[int]*recordFile
}

// Open loads (or initializes) a database rooted at dir. Cluster files are
// opened lazily on first access.
func Open(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	schemaPath := filepath.Join(dir, "schema.json")
	var schema *Schema
	if _, err := os.Stat(schemaPath); err == nil {
		schema, err = LoadSchema(schemaPath)
		if err != nil {
			return nil, err
		}
	} else {
		schema = NewSchema()
	}

	return &Database{
		dir:      dir,
		schema:   schema,
		clusters: make(map[int]*recordFile),
	}, nil
}

// Close flushes and unmaps every open cluster file.
func (db *Database) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	var firstErr error
	for id, rf := range db.clusters {
		if err := rf.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(db.clusters, id)
	}
	return firstErr
}

// Schema returns the database schema.
func (db *Database) Schema() *Schema {
	return db.schema
}

// CreateClass registers a class with its backing cluster and persists the
// schema.
func (db *Database) CreateClass(name string) (*Class, error) {
	cls, err := db.schema.CreateClass(name)
	if err != nil {
		return nil, err
	}
	if err := db.schema.Save(filepath.Join(db.dir, "schema.json")); err != nil {
		return nil, err
	}
	log.Printf("Created class %s on cluster %d", cls.Name(), cls.ClusterID())
	return cls, nil
}

func (db *Database) cluster(id int) (*recordFile, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if rf, ok := db.clusters[id]; ok {
		return rf, nil
	}
	if _, ok := db.schema.ClusterName(id); !ok {
		return nil, fmt.Errorf("cluster %d does not exist", id)
	}
	rf, err := openRecordFile(filepath.Join(db.dir, fmt.Sprintf("cluster_%d.dat", id)))
	if err != nil {
		return nil, err
	}
	db.clusters[id] = rf
	return rf, nil
}

// Insert stores a JSON payload as a record of the named class and returns the
// document with its assigned identity.
func (db *Database) Insert(class string, payload []byte) (*Document, error) {
	c, ok := db.schema.FindClass(class)
	if !ok {
		return nil, &filter.ClassNotFoundError{Name: class}
	}
	cls := c.(*Class)

	doc, err := NewDocument(cls.Name(), payload)
	if err != nil {
		return nil, err
	}

	rf, err := db.cluster(cls.ClusterID())
	if err != nil {
		return nil, err
	}
	position, err := rf.addRecord(doc.raw)
	if err != nil {
		return nil, err
	}
	doc.rid = RID{ClusterID: cls.ClusterID(), Position: position}
	return doc, nil
}

// Fetch loads the record at rid.
func (db *Database) Fetch(rid RID) (*Document, error) {
	rf, err := db.cluster(rid.ClusterID)
	if err != nil {
		return nil, err
	}
	data, err := rf.readRecord(rid.Position)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rid, err)
	}
	doc, err := NewDocument(db.classOfCluster(rid.ClusterID), data)
	if err != nil {
		return nil, err
	}
	doc.rid = rid
	return doc, nil
}

// Update replaces the payload of the record at rid, keeping its identity.
func (db *Database) Update(rid RID, payload []byte) (*Document, error) {
	rf, err := db.cluster(rid.ClusterID)
	if err != nil {
		return nil, err
	}
	doc, err := NewDocument(db.classOfCluster(rid.ClusterID), payload)
	if err != nil {
		return nil, err
	}
	if err := rf.updateRecord(rid.Position, doc.raw); err != nil {
		return nil, fmt.Errorf("record %s: %w", rid, err)
	}
	doc.rid = rid
	return doc, nil
}

// Delete removes the record at rid.
func (db *Database) Delete(rid RID) error {
	rf, err := db.cluster(rid.ClusterID)
	if err != nil {
		return err
	}
	if err := rf.deleteRecord(rid.Position); err != nil {
		return fmt.Errorf("record %s: %w", rid, err)
	}
	return nil
}

// classOfCluster maps a cluster id back to its class name; records in an
// unclassed cluster report an empty class.
func (db *Database) classOfCluster(id int) string {
	name, ok := db.schema.ClusterName(id)
	if !ok {
		return ""
	}
	if c, ok := db.schema.FindClass(name); ok {
		return c.Name()
	}
	return ""
}

// scanCluster visits every live document in the cluster.
func (db *Database) scanCluster(id int, fn func(*Document) error) error {
	rf, err := db.cluster(id)
	if err != nil {
		return err
	}
	class := db.classOfCluster(id)
	return rf.scan(func(position int64, data []byte) error {
		doc, err := NewDocument(class, data)
		if err != nil {
			return err
		}
		doc.rid = RID{ClusterID: id, Position: position}
		return fn(doc)
	})
}

func (db *Database) options() filter.Options {
	return filter.Options{Schema: db.schema, Executor: db}
}

// Query parses and runs "<target> [WHERE <predicate>]". args binds the
// query's parameters: integer keys address positional parameters in
// declaration order, string keys address named parameters.
func (db *Database) Query(text string, args map[interface{}]interface{}) ([]*Document, error) {
	f, err := filter.Parse(text, db.options())
	if err != nil {
		return nil, err
	}
	if args != nil {
		f.Bind(args)
	}
	return db.run(f, filter.Context{})
}

func (db *Database) run(f *filter.Filter, ctx filter.Context) ([]*Document, error) {
	var candidates []*Document
	collect := func(doc *Document) error {
		candidates = append(candidates, doc)
		return nil
	}

	switch {
	case f.TargetIndex() != "":
		return nil, fmt.Errorf("index target %q is not supported", f.TargetIndex())

	case f.TargetRecords() != nil:
		for _, rid := range f.TargetRecords() {
			doc, err := db.Fetch(rid)
			if err != nil {
				continue // dangling identifiers are skipped, not errors
			}
			candidates = append(candidates, doc)
		}

	case f.TargetQuery() != nil:
		records, err := f.ResolveTargetQuery(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if doc, ok := rec.(*Document); ok {
				candidates = append(candidates, doc)
			}
		}

	case f.TargetClasses() != nil:
		for name := range f.TargetClasses() {
			c, ok := db.schema.FindClass(name)
			if !ok {
				return nil, &filter.ClassNotFoundError{Name: name}
			}
			if err := db.scanCluster(c.(*Class).ClusterID(), collect); err != nil {
				return nil, err
			}
		}

	case f.TargetClusters() != nil:
		for name := range f.TargetClusters() {
			id, ok := db.schema.ClusterID(name)
			if !ok {
				return nil, fmt.Errorf("cluster %q does not exist", name)
			}
			if err := db.scanCluster(id, collect); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("query has no target")
	}

	var matched []*Document
	for _, doc := range candidates {
		ok, err := f.Evaluate(doc, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// resultSet adapts query results to the filter package's sub-query contract.
type resultSet struct {
	records []filter.Record
	ctx     filter.Context
}

func (r *resultSet) Records() []filter.Record {
	return r.records
}

func (r *resultSet) Context() filter.Context {
	return r.ctx
}

// Execute runs an embedded statement on behalf of a sub-query. Only the
// SELECT form is understood; projections are not applied, the matched
// records come back whole.
func (db *Database) Execute(text string) (filter.ResultSet, error) {
	body := strings.TrimSpace(text)
	upper := strings.ToUpper(body)
	switch {
	case strings.HasPrefix(upper, "SELECT"):
		rest := body[len("SELECT"):]
		restUpper := upper[len("SELECT"):]
		from := strings.Index(restUpper, "FROM")
		if from < 0 {
			return nil, fmt.Errorf("embedded statement %q has no FROM clause", text)
		}
		body = strings.TrimSpace(rest[from+len("FROM"):])
	case strings.HasPrefix(upper, "TRAVERSE"):
		return nil, fmt.Errorf("TRAVERSE statements are not supported")
	}

	docs, err := db.Query(body, nil)
	if err != nil {
		return nil, err
	}
	rs := &resultSet{ctx: filter.Context{}}
	for _, doc := range docs {
		rs.records = append(rs.records, doc)
	}
	return rs, nil
}
