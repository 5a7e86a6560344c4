package msstore_test

import (
	"path/filepath"
	"testing"

	"tankarena/internal/msstore"
	"tankarena/internal/protocol"
)

func TestAllocateMintsFreshKeyWhenFreeListEmpty(t *testing.T) {
	s, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key, isNew, clonedFrom, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if key == "" {
		t.Fatal("Allocate returned an empty modelKey")
	}
	if !isNew {
		t.Fatal("first allocation for a mapKey should report isNew=true")
	}
	if clonedFrom != "" {
		t.Fatalf("first allocation for a mapKey should not clone, got clonedFrom=%q", clonedFrom)
	}
}

func TestAllocateReusesReleasedKeyBeforeMintingANewOne(t *testing.T) {
	s, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	first, _, _, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	s.Release("arena1", first)

	second, isNew, _, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != first {
		t.Fatalf("expected the released key %q to be reallocated, got %q instead", first, second)
	}
	if isNew {
		t.Fatal("reallocating a released key should report isNew=false")
	}
}

func TestAllocateClonesLastPoppedRecordWhenMintingFresh(t *testing.T) {
	s, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key, _, _, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	rec := msstore.Record{
		ModelKey:         key,
		ModelTopology:    protocol.ModelTopology{Format: "mlp-q", StateSize: 108, ActionSize: 10, HiddenSize: 64},
		WeightDataBase64: "deadbeef",
	}
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// key is now held (not released): the next allocation must mint a new
	// key, cloned from the last-popped record for this mapKey.
	second, isNew, clonedFrom, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second == key {
		t.Fatal("second allocation should mint a distinct key while the first is still held")
	}
	if !isNew {
		t.Fatal("minting a fresh key while the held key is still out should report isNew=true")
	}
	if clonedFrom != key {
		t.Fatalf("expected clonedFrom=%q, got %q", key, clonedFrom)
	}

	got, ok := s.Get(second)
	if !ok {
		t.Fatalf("cloned key %q was not persisted", second)
	}
	if got.WeightDataBase64 != rec.WeightDataBase64 {
		t.Fatalf("cloned record's weights do not match the source record: got %q, want %q", got.WeightDataBase64, rec.WeightDataBase64)
	}
	if got.ModelTopology != rec.ModelTopology {
		t.Fatalf("cloned record's topology does not match the source record: got %+v, want %+v", got.ModelTopology, rec.ModelTopology)
	}
}

func TestUpsertReplacesAllFieldsOnConflict(t *testing.T) {
	s, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	key := "tank-ai-dqn-arena1-1"
	first := msstore.Record{ModelKey: key, WeightDataBase64: "aaaa", Metadata: map[string]any{"mapKey": "arena1"}}
	if err := s.Upsert(first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	firstUpdatedAt, _ := s.Get(key)

	second := msstore.Record{ModelKey: key, WeightDataBase64: "bbbb", Metadata: map[string]any{"mapKey": "arena1", "note": "retrained"}}
	if err := s.Upsert(second); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("record vanished after upsert")
	}
	if got.WeightDataBase64 != "bbbb" {
		t.Fatalf("Upsert did not replace weight data: got %q", got.WeightDataBase64)
	}
	if got.Metadata["note"] != "retrained" {
		t.Fatalf("Upsert did not replace metadata: got %+v", got.Metadata)
	}
	if !got.UpdatedAt.After(firstUpdatedAt.UpdatedAt) {
		t.Fatal("Upsert did not bump UpdatedAt on conflict")
	}
}

func TestOpenRebuildsFreeListFromPersistedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	s, err := msstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key, _, _, err := s.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := s.Upsert(msstore.Record{ModelKey: key, Metadata: map[string]any{"mapKey": "arena1"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	s.Release("arena1", key)

	reopened, err := msstore.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reallocated, _, _, err := reopened.Allocate("arena1", "tank-ai-dqn")
	if err != nil {
		t.Fatalf("Allocate after reopen: %v", err)
	}
	if reallocated != key {
		t.Fatalf("reopened store did not rebuild its free-list: got %q, want %q", reallocated, key)
	}
}

func TestListKeysFiltersByMapKey(t *testing.T) {
	s, err := msstore.Open(filepath.Join(t.TempDir(), "models.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Upsert(msstore.Record{ModelKey: "a-1", Metadata: map[string]any{"mapKey": "arena1"}})
	s.Upsert(msstore.Record{ModelKey: "b-2", Metadata: map[string]any{"mapKey": "arena2"}})

	arena1Keys := s.ListKeys("arena1")
	if len(arena1Keys) != 1 || arena1Keys[0].ModelKey != "a-1" {
		t.Fatalf("expected exactly one arena1 key, got %+v", arena1Keys)
	}

	all := s.ListKeys("")
	if len(all) != 2 {
		t.Fatalf("expected 2 keys unfiltered, got %d", len(all))
	}
}
