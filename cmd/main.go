package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"net/http"
	_ "net/http/pprof"

	orientdb "github.com/jonasrmichel/orientdb-android"
	"github.com/spf13/pflag"
)

func main() {
	// Start pprof server
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()

	// Define the flags
	pflag.Bool("serve", false, "Start the server")
	pflag.String("query", "", "Run a query against the database and print the results")
	pflag.String("import", "", "Import records from the specified file, one JSON object per line")
	pflag.String("class", "", "Class to import records into (required with --import)")
	pflag.Bool("token", false, "Generate an API token using the configured signing key")
	pflag.Parse()

	if err := LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Handle --query flag
	queryText := pflag.Lookup("query").Value.String()
	if queryText != "" {
		db := mustOpen()
		defer db.Close()

		docs, err := db.Query(queryText, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		for _, doc := range docs {
			enc.Encode(map[string]interface{}{
				"rid":    doc.Identity().String(),
				"class":  doc.ClassName(),
				"record": doc.Map(),
			})
		}
		return
	}

	// Handle --import flag
	importFile := pflag.Lookup("import").Value.String()
	className := pflag.Lookup("class").Value.String()
	if importFile != "" {
		if className == "" {
			fmt.Fprintf(os.Stderr, "Error: --class flag is required when using --import\n")
			os.Exit(1)
		}

		db := mustOpen()
		defer db.Close()

		if _, ok := db.Schema().FindClass(className); !ok {
			if _, err := db.CreateClass(className); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating class: %v\n", err)
				os.Exit(1)
			}
		}

		file, err := os.Open(importFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening import file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()

		count := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if _, err := db.Insert(className, line); err != nil {
				fmt.Fprintf(os.Stderr, "Error importing record: %v\n", err)
				os.Exit(1)
			}
			count++
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading import file: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Imported %d records into class %s\n", count, className)
		return
	}

	// Handle --token flag
	if pflag.Lookup("token").Value.String() == "true" {
		key := configuredJWTKey()
		if key == "" {
			fmt.Fprintf(os.Stderr, "Error: no jwt_key configured\n")
			os.Exit(1)
		}
		token, err := orientdb.GenerateToken("cli", []byte(key))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// Handle --serve flag
	if pflag.Lookup("serve").Value.String() == "true" {
		orientdb.RunServer()
		select {}
	} else {
		// Output help message
		fmt.Println("Usage:")
		pflag.PrintDefaults()
	}
}

func mustOpen() *orientdb.Database {
	db, err := orientdb.Open(configuredDataFolder())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}
