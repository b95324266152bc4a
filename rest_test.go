package orientdb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	cfg.DataFolder = t.TempDir()
	Configure(cfg)

	db, err := Open(cfg.DataFolder)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	server := NewServer(db)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestServerClassesAndRecords(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/api/v1/classes", `{"name": "Person"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 creating class, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/v1/classes/Person/records",
		`[{"name":"John","age":40},{"name":"Ann","age":25}]`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 inserting records, got %d", resp.StatusCode)
	}
	var inserted struct {
		RIDs []string `json:"rids"`
	}
	json.NewDecoder(resp.Body).Decode(&inserted)
	resp.Body.Close()
	if len(inserted.RIDs) != 2 {
		t.Fatalf("Expected two inserted rids, got %v", inserted.RIDs)
	}

	// Fetch one back by identity.
	rid := strings.TrimPrefix(inserted.RIDs[0], "#")
	recordURL := ts.URL + "/api/v1/records/" + strings.Replace(rid, ":", "/", 1)
	resp, err := http.Get(recordURL)
	if err != nil {
		t.Fatalf("GET record failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 fetching record, got %d", resp.StatusCode)
	}
	var fetched struct {
		Class  string                 `json:"class"`
		Record map[string]interface{} `json:"record"`
	}
	json.NewDecoder(resp.Body).Decode(&fetched)
	resp.Body.Close()
	if fetched.Class != "Person" || fetched.Record["name"] != "John" {
		t.Errorf("Unexpected record payload: %+v", fetched)
	}

	// Query endpoint.
	resp = postJSON(t, ts.URL+"/api/v1/query",
		`{"query": "Person where age > :min", "params": {"min": 30}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from query, got %d", resp.StatusCode)
	}
	var queried struct {
		Count int `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&queried)
	resp.Body.Close()
	if queried.Count != 1 {
		t.Errorf("Expected one query match, got %d", queried.Count)
	}

	// Delete, then confirm it is gone.
	req, _ := http.NewRequest(http.MethodDelete, recordURL, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 deleting record: %v %v", err, resp)
	}
	resp.Body.Close()
	resp, _ = http.Get(recordURL)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestServerQueryParseError(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/api/v1/query", `{"query": "   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty query, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestServerAuthentication(t *testing.T) {
	_, ts := newTestServer(t, Config{JWTKey: "server-secret"})

	resp := postJSON(t, ts.URL+"/api/v1/classes", `{"name": "Person"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without a token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	token, err := GenerateToken("test", []byte("server-secret"))
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/classes",
		strings.NewReader(`{"name": "Person"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with token failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected 201 with a valid token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestServerLiveQuery(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+"/api/v1/classes", `{"name": "Person"}`)
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/v1/classes/Person/records", `{"name":"Zoe","age":50}`)
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"query": "Person where age > 30"}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ack map[string]string
	if err := conn.ReadJSON(&ack); err != nil || ack["message"] != "subscribed" {
		t.Fatalf("Expected subscription ack, got %v %v", ack, err)
	}

	var pushed struct {
		Class  string                 `json:"class"`
		Record map[string]interface{} `json:"record"`
	}

	// The record inserted before subscribing is replayed first.
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("Failed to read replayed record: %v", err)
	}
	if pushed.Record["name"] != "Zoe" {
		t.Errorf("Expected the existing match replayed, got %+v", pushed.Record)
	}

	// The young record must not be pushed, the older one must.
	resp = postJSON(t, ts.URL+"/api/v1/classes/Person/records", `{"name":"Ann","age":25}`)
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/v1/classes/Person/records", `{"name":"John","age":40}`)
	resp.Body.Close()

	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("Failed to read pushed record: %v", err)
	}
	if pushed.Record["name"] != "John" {
		t.Errorf("Expected only the matching record, got %+v", pushed.Record)
	}
}

func TestServerLiveQueryBadPredicate(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(map[string]string{"query": "Nowhere where age > 1"})
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply map[string]string
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("Failed to read error reply: %v", err)
	}
	if reply["error"] == "" {
		t.Errorf("Expected an error reply, got %v", reply)
	}
}
