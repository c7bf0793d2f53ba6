package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/store"
	"github.com/moj-analytical-services/fuzzyfinder-go/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"
	return NewServer(s, cfg)
}

func doRequest(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		encoded, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer(t)
	rec := doRequest(server, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestIngestThenSearch(t *testing.T) {
	server := newTestServer(t)

	ingestBody := ingestRequest{Records: []map[string]string{
		{"unique_id": "1", "first_name": "Robin", "surname": "Linacre"},
		{"unique_id": "2", "first_name": "David", "surname": "Smith"},
	}}
	rec := doRequest(server, http.MethodPost, "/api/v1/ingest", ingestBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := server.store.BuildOrReplaceStatsTables(context.Background()); err != nil {
		t.Fatalf("failed to build stats: %v", err)
	}

	searchBody := searchRequest{Query: map[string]string{"first_name": "Robin", "surname": "Linacre"}}
	rec = doRequest(server, http.MethodPost, "/api/v1/search", searchBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Errorf("expected successful search response, got %v", resp)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	server := newTestServer(t)
	rec := doRequest(server, http.MethodGet, "/api/v1/records/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
