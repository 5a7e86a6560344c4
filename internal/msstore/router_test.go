package msstore_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"tankarena/internal/msclient"
	"tankarena/internal/msstore"
	"tankarena/internal/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *msclient.Client) {
	t.Helper()
	store, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	router := msstore.NewRouter(msstore.RouterConfig{Store: store, DisableLogging: true})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, msclient.New(srv.URL)
}

func TestClientAllocateGetPutReleaseRoundTrip(t *testing.T) {
	_, client := newTestServer(t)

	modelKey, isNew, clonedFrom, err := client.AllocateFull("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("AllocateFull: %v", err)
	}
	if !isNew {
		t.Fatal("first allocation for a fresh store should report isNew=true")
	}
	if clonedFrom != "" {
		t.Fatalf("first allocation should not clone, got clonedFrom=%q", clonedFrom)
	}

	if _, ok, err := client.GetModel(modelKey); err != nil || ok {
		t.Fatalf("GetModel on a never-saved key should be (false, nil), got ok=%v err=%v", ok, err)
	}

	rec := msstore.Record{
		ModelKey:      modelKey,
		ModelTopology: protocol.ModelTopology{Format: "mlp-q", StateSize: 108, ActionSize: 10, HiddenSize: 64},
		Metadata:      map[string]any{"mapKey": "arena1"},
	}
	if err := client.PutModel(modelKey, rec); err != nil {
		t.Fatalf("PutModel: %v", err)
	}

	got, ok, err := client.GetModel(modelKey)
	if err != nil || !ok {
		t.Fatalf("GetModel after save: ok=%v err=%v", ok, err)
	}
	if got.ModelTopology != rec.ModelTopology {
		t.Fatalf("saved topology mismatch: got %+v, want %+v", got.ModelTopology, rec.ModelTopology)
	}

	if err := client.Release("arena1", modelKey); err != nil {
		t.Fatalf("Release: %v", err)
	}

	reallocated, isNew, _, err := client.AllocateFull("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("AllocateFull after release: %v", err)
	}
	if reallocated != modelKey {
		t.Fatalf("expected the released key to be reallocated: got %q, want %q", reallocated, modelKey)
	}
	if isNew {
		t.Fatal("reallocating a released key should report isNew=false")
	}
}

func TestClientAllocateImplementsModelAllocator(t *testing.T) {
	_, client := newTestServer(t)
	modelKey, isNew, err := client.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if modelKey == "" {
		t.Fatal("Allocate returned an empty modelKey")
	}
	if !isNew {
		t.Fatal("first allocation for a fresh store should report isNew=true")
	}
}

// TestAllocateWireShapeMatchesOriginal asserts the literal JSON field names
// on the wire, not just what msclient happens to decode — a renamed field
// on both sides would otherwise go unnoticed (original_source/DeepRL/
// backend/server.py's allocate/list-keys handlers are the reference shape).
func TestAllocateWireShapeMatchesOriginal(t *testing.T) {
	srv, client := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/rl-allocate/arena1?baseKey=tank-ai-dqn")
	if err != nil {
		t.Fatalf("GET rl-allocate: %v", err)
	}
	defer resp.Body.Close()
	var allocated map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&allocated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := allocated["modelKey"]; !ok {
		t.Error(`allocate response missing "modelKey"`)
	}
	if _, ok := allocated["isNew"]; !ok {
		t.Error(`allocate response missing "isNew"`)
	}
	if _, ok := allocated["clonedFromKey"]; ok {
		t.Error(`allocate response must not carry the old "clonedFromKey" field name`)
	}
	modelKey, _ := allocated["modelKey"].(string)

	if err := client.PutModel(modelKey, msstore.Record{ModelKey: modelKey, Metadata: map[string]any{"mapKey": "arena1"}}); err != nil {
		t.Fatalf("PutModel: %v", err)
	}

	listResp, err := http.Get(srv.URL + "/api/rl-model-keys?mapKey=arena1")
	if err != nil {
		t.Fatalf("GET rl-model-keys: %v", err)
	}
	defer listResp.Body.Close()
	var listed map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	models, ok := listed["models"].([]any)
	if !ok {
		t.Fatalf(`expected a top-level "models" array, got %+v`, listed)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 model for arena1, got %d", len(models))
	}

	releaseBody, _ := json.Marshal(map[string]string{"modelKey": modelKey})
	releaseResp, err := http.Post(srv.URL+"/api/rl-release/arena1", "application/json", bytes.NewReader(releaseBody))
	if err != nil {
		t.Fatalf("POST rl-release: %v", err)
	}
	defer releaseResp.Body.Close()
	var released map[string]any
	if err := json.NewDecoder(releaseResp.Body).Decode(&released); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok, _ := released["ok"].(bool); !ok {
		t.Errorf(`release response should carry {"ok": true}, got %+v`, released)
	}
	if _, present := released["success"]; present {
		t.Error(`release response must not carry the old "success" field name`)
	}
}
