package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/myunifiles/unifiles/internal/store"
	"github.com/myunifiles/unifiles/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	backend := memory.New()
	srv := httptest.NewServer(NewHandler(backend))
	t.Cleanup(srv.Close)
	return srv, backend
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateQueryUpdateDelete(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/partitions/Courses/records", mutationPayload{
		Fields: map[string]any{"name": "CompSci"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" || created.Partition != store.PartitionCourses {
		t.Fatalf("unexpected created record %+v", created)
	}

	resp = postJSON(t, srv.URL+"/v1/query", store.Query{
		Partition:  store.PartitionCourses,
		Predicates: []store.Predicate{store.Eq("name", "CompSci")},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d, want 200", resp.StatusCode)
	}
	var queried recordsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&queried); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if len(queried.Records) != 1 || queried.Records[0].ID != created.ID {
		t.Fatalf("unexpected query result %+v", queried)
	}

	resp = doJSON(t, http.MethodPatch, srv.URL+"/v1/partitions/Courses/records/"+created.ID, mutationPayload{
		Fields: map[string]any{"name": "Computer Science"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	var updated wireRecord
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Fields["name"] != "Computer Science" {
		t.Fatalf("unexpected updated record %+v", updated)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/partitions/Courses/records/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestQueryValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/query", store.Query{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if envelope.Error.Code != "EMPTY_PARTITION" {
		t.Fatalf("error code = %q, want EMPTY_PARTITION", envelope.Error.Code)
	}
}

func TestUpdateMissingRecordReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPatch, srv.URL+"/v1/partitions/Courses/records/missing", mutationPayload{
		Fields: map[string]any{"name": "x"},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
