/*
Package orientdb provides an embeddable record database written in Go, built around
a class/cluster data model and an expressive filter language for querying records.
Data lives on disk in append-only cluster files, so working sets larger than memory
are handled gracefully.

# Data Model

Records are schemaless JSON documents grouped into classes. Each class owns one or
more clusters; a record's identity is the pair of its cluster id and its position
inside that cluster, written #<cluster>:<position>.

# Usage

## Opening a Database

	db, err := orientdb.Open("./data")
	if err != nil {
	    log.Fatal(err)
	}
	defer db.Close()

## Defining Classes

	if _, err := db.CreateClass("Person"); err != nil {
	    log.Fatal(err)
	}

## Inserting and Reading Records

	doc, err := db.Insert("Person", []byte(`{"name": "John", "age": 40}`))
	// doc.Identity() -> #9:0

	doc, err = db.Fetch(orientdb.RID{ClusterID: 9, Position: 0})

## Querying

Queries name a target (a class, cluster, record id, or nested query) followed by an
optional WHERE predicate:

	docs, err := db.Query("Person where age > 30 and name like 'J%'", nil)

Named and positional parameters are bound through the args map:

	docs, err = db.Query("Person where age > :min", map[interface{}]interface{}{
	    "min": int64(30),
	})

The predicate language supports dotted field paths, field modifiers such as
name.toUpperCase(), collection operators (IN, CONTAINS, CONTAINSALL), text matching
(LIKE, MATCHES, CONTAINSTEXT), BETWEEN ranges, IS NULL checks, and nested
subqueries as both operands and targets. See the filter subpackage for the parser
and evaluator.

## Serving over HTTP

RunServer starts a REST API with optional JWT authentication and websocket live
queries that push matching records to subscribers as they are inserted:

	orientdb.Configure(orientdb.Config{DataFolder: "./data", HostAddr: ":8080"})
	orientdb.RunServer()
*/
package orientdb
