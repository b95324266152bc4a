package orientdb

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/valyala/fastjson"

	"github.com/jonasrmichel/orientdb-android/filter"
)

/*
Server exposes the database over HTTP: class management, record CRUD, the
query endpoint, and a websocket channel streaming newly inserted records
through a standing predicate.
*/
type Server struct {
	db      *Database
	mutex   sync.Mutex
	live    map[*liveClient]bool
	parsers fastjson.ParserPool
}

func NewServer(db *Database) *Server {
	return &Server{
		db:   db,
		live: make(map[*liveClient]bool),
	}
}

// RunServer opens the configured database and serves the API until the
// process exits.
func RunServer() {
	db, err := Open(globalConfig.DataFolder)
	if err != nil {
		log.Fatalf("Cannot open database in %s: %v", globalConfig.DataFolder, err)
	}

	server := NewServer(db)
	log.Printf("Listening on %s", globalConfig.HostAddr)
	log.Println(http.ListenAndServe(globalConfig.HostAddr, server.Handler()))
}

// Handler builds the route table with authentication applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/classes", s.authenticate(s.handleClasses))
	mux.HandleFunc("/api/v1/classes/", s.authenticate(s.handleClassRecords))
	mux.HandleFunc("/api/v1/records/", s.authenticate(s.handleRecord))
	mux.HandleFunc("/api/v1/query", s.authenticate(s.handleQuery))
	mux.HandleFunc("/api/v1/live", s.authenticate(s.handleLive))
	return mux
}

// authenticate enforces the bearer token when a signing key is configured.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalConfig.JWTKey != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if _, err := ValidateToken(token, []byte(globalConfig.JWTKey)); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleClasses(w http.ResponseWriter, r *http.Request) {
	log.Printf("Received %s request for %s", r.Method, r.URL.Path)

	switch r.Method {
	case http.MethodPost:
		var temp struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&temp); err != nil {
			log.Printf("Error decoding request body: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		cls, err := s.db.CreateClass(temp.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Class created successfully.",
			"name":    cls.Name(),
			"cluster": cls.ClusterID(),
		})

	case http.MethodGet:
		var classesInfo []map[string]interface{}
		for _, id := range s.db.Schema().ClusterIDs() {
			name, _ := s.db.Schema().ClusterName(id)
			c, ok := s.db.Schema().FindClass(name)
			if !ok {
				continue
			}
			info := map[string]interface{}{
				"name":    c.Name(),
				"cluster": id,
			}
			if rf, err := s.db.cluster(id); err == nil {
				info["num_records"] = rf.count()
			}
			classesInfo = append(classesInfo, info)
		}
		json.NewEncoder(w).Encode(classesInfo)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleClassRecords serves POST /api/v1/classes/<name>/records. The body is
// one JSON object or an array of them; each becomes a record of the class.
func (s *Server) handleClassRecords(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 || parts[5] != "records" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	className := parts[4]

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, globalConfig.MaxBodySize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	parser := s.parsers.Get()
	defer s.parsers.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var payloads [][]byte
	switch v.Type() {
	case fastjson.TypeArray:
		arr, _ := v.Array()
		for _, elem := range arr {
			payloads = append(payloads, elem.MarshalTo(nil))
		}
	case fastjson.TypeObject:
		payloads = append(payloads, v.MarshalTo(nil))
	default:
		http.Error(w, "Body must be a JSON object or array", http.StatusBadRequest)
		return
	}

	var rids []string
	for _, payload := range payloads {
		doc, err := s.db.Insert(className, payload)
		if err != nil {
			var missing *filter.ClassNotFoundError
			if errors.As(err, &missing) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
			return
		}
		rids = append(rids, doc.Identity().String())
		s.broadcast(doc)
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Records inserted successfully.",
		"rids":    rids,
	})
}

// handleRecord serves GET/PUT/DELETE /api/v1/records/<cluster>/<position>.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 6 {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	cluster, err1 := strconv.Atoi(parts[4])
	position, err2 := strconv.ParseInt(parts[5], 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "Invalid record identifier", http.StatusBadRequest)
		return
	}
	rid := RID{ClusterID: cluster, Position: position}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.db.Fetch(rid)
		if err != nil {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(recordJSON(doc))

	case http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, globalConfig.MaxBodySize))
		if err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		doc, err := s.db.Update(rid, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(recordJSON(doc))

	case http.MethodDelete:
		if err := s.db.Delete(rid); err != nil {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Record deleted successfully.",
			"rid":     rid.String(),
		})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleQuery serves POST /api/v1/query: {"query": "...", "params": {...}}.
// Parameter keys that are all digits bind positionally.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log.Printf("Received %s request for %s", r.Method, r.URL.Path)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Query  string                 `json:"query"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, globalConfig.MaxBodySize)).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	docs, err := s.db.Query(request.Query, bindArgs(request.Params))
	if err != nil {
		var parseErr *filter.ParseError
		if errors.As(err, &parseErr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	results := make([]map[string]interface{}, len(docs))
	for i, doc := range docs {
		results[i] = recordJSON(doc)
	}
	json.NewEncoder(w).Encode(struct {
		Results []map[string]interface{} `json:"results"`
		Count   int                      `json:"count"`
	}{Results: results, Count: len(results)})
}

func bindArgs(params map[string]interface{}) map[interface{}]interface{} {
	if params == nil {
		return nil
	}
	args := make(map[interface{}]interface{}, len(params))
	for k, v := range params {
		if n, err := strconv.Atoi(k); err == nil {
			args[n] = normalizeArg(v)
		} else {
			args[k] = normalizeArg(v)
		}
	}
	return args
}

// normalizeArg aligns JSON numbers with the filter's numeric literals, which
// parse whole numbers as int64.
func normalizeArg(v interface{}) interface{} {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func recordJSON(doc *Document) map[string]interface{} {
	return map[string]interface{}{
		"rid":    doc.Identity().String(),
		"class":  doc.ClassName(),
		"record": doc.Map(),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// liveClient is one websocket subscriber with its standing predicate.
type liveClient struct {
	conn   *websocket.Conn
	filter *filter.Filter
	mutex  sync.Mutex
}

func (c *liveClient) send(v interface{}) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn.WriteJSON(v)
}

// handleLive upgrades to a websocket, reads one subscription message
// {"query": "..."} and then streams every inserted record matching it until
// the client disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	var request struct {
		Query string `json:"query"`
	}
	if err := conn.ReadJSON(&request); err != nil {
		conn.Close()
		return
	}

	f, err := filter.Parse(request.Query, s.db.options())
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		conn.Close()
		return
	}

	client := &liveClient{conn: conn, filter: f}
	s.mutex.Lock()
	s.live[client] = true
	s.mutex.Unlock()
	log.Printf("Live query subscribed: %s", request.Query)

	client.send(map[string]string{"message": "subscribed"})

	// Replay the records that already match before streaming new inserts.
	if docs, err := s.db.run(f, filter.Context{}); err == nil {
		for _, doc := range docs {
			client.send(recordJSON(doc))
		}
	}

	// Hold the connection open; any read means the client is done.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		s.mutex.Lock()
		delete(s.live, client)
		s.mutex.Unlock()
		conn.Close()
		log.Printf("Live query disconnected")
	}()
}

// broadcast pushes doc to every live subscriber whose predicate and target
// match it.
func (s *Server) broadcast(doc *Document) {
	s.mutex.Lock()
	clients := make([]*liveClient, 0, len(s.live))
	for c := range s.live {
		clients = append(clients, c)
	}
	s.mutex.Unlock()

	for _, c := range clients {
		if !s.targets(c.filter, doc) {
			continue
		}
		ok, err := c.filter.Evaluate(doc, filter.Context{})
		if err != nil || !ok {
			continue
		}
		if err := c.send(recordJSON(doc)); err != nil {
			log.Printf("Error writing to live client: %v", err)
		}
	}
}

// targets reports whether doc falls inside the filter's target set.
func (s *Server) targets(f *filter.Filter, doc *Document) bool {
	switch {
	case f.TargetClasses() != nil:
		for name := range f.TargetClasses() {
			if strings.EqualFold(name, doc.ClassName()) {
				return true
			}
		}
		return false
	case f.TargetClusters() != nil:
		for name := range f.TargetClusters() {
			if id, ok := s.db.Schema().ClusterID(name); ok && id == doc.Identity().ClusterID {
				return true
			}
		}
		return false
	case f.TargetRecords() != nil:
		for _, rid := range f.TargetRecords() {
			if rid == doc.Identity() {
				return true
			}
		}
		return false
	}
	return false
}
