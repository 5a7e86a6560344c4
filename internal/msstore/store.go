// Package msstore implements the model store's key->record persistence and
// per-map-key allocation free-list (§4.4), adapted from the teacher's own
// JSON-file config pattern.
package msstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tankarena/internal/protocol"
)

// Record is one stored model: topology, weight spec/blob, and metadata,
// keyed by modelKey.
type Record struct {
	ModelKey         string                 `json:"modelKey"`
	ModelTopology    protocol.ModelTopology `json:"modelTopology"`
	WeightSpecs      []protocol.WeightSpec  `json:"weightSpecs"`
	WeightDataBase64 string                 `json:"weightDataBase64"`
	TrainingConfig   map[string]any         `json:"trainingConfig,omitempty"`
	Metadata         map[string]any         `json:"userDefinedMetadata,omitempty"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// KeySummary is one row of GET /api/rl-model-keys.
type KeySummary struct {
	ModelKey  string    `json:"modelKey"`
	MapKey    string    `json:"mapKey"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the on-disk JSON-backed model record store plus its in-memory
// per-mapKey free-list (§4.4).
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record // modelKey -> record

	freeList   map[string][]string // mapKey -> []modelKey, head = next pop
	lastPopped map[string]string   // mapKey -> most recently allocated modelKey
}

type fileFormat struct {
	Records map[string]Record `json:"records"`
}

// Open loads (or creates) the JSON-backed store at path and rebuilds the
// free-list from every stored record (design notes: "MS reconstructs its
// free-list ... on startup", grounded on original_source's
// rebuild_free_list()).
func Open(path string) (*Store, error) {
	s := &Store{
		path:       path,
		records:    make(map[string]Record),
		freeList:   make(map[string][]string),
		lastPopped: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("msstore: read %s: %w", path, err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("msstore: decode %s: %w", path, err)
	}
	if ff.Records != nil {
		s.records = ff.Records
	}
	s.rebuildFreeList()
	return s, nil
}

// rebuildFreeList repopulates the free-list from every stored record,
// deriving each record's mapKey with mapKeyFromRecord (metadata["mapKey"],
// else the last "-"-delimited token of modelKey, else "default").
// lastPopped is not rebuilt and starts empty.
func (s *Store) rebuildFreeList() {
	s.freeList = make(map[string][]string)
	for key, rec := range s.records {
		mapKey := mapKeyFromRecord(key, rec.Metadata)
		s.freeList[mapKey] = append(s.freeList[mapKey], key)
	}
}

func mapKeyFromRecord(modelKey string, metadata map[string]any) string {
	if metadata != nil {
		if v, ok := metadata["mapKey"].(string); ok && v != "" {
			return v
		}
	}
	if idx := strings.LastIndex(modelKey, "-"); idx >= 0 {
		return modelKey[idx+1:]
	}
	return "default"
}

// persist writes the full record set to disk. Callers must hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("msstore: mkdir %s: %w", dir, err)
		}
	}
	data, err := json.Marshal(fileFormat{Records: s.records})
	if err != nil {
		return fmt.Errorf("msstore: encode store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("msstore: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

// Get returns a record by modelKey.
func (s *Store) Get(modelKey string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[modelKey]
	return rec, ok
}

// Upsert inserts or replaces a record (on-conflict replaces all fields and
// the timestamp, §4.4).
func (s *Store) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.ModelKey] = rec
	return s.persist()
}

// ListKeys returns a summary of every stored record, optionally filtered
// to one mapKey.
func (s *Store) ListKeys(mapKeyFilter string) []KeySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KeySummary, 0, len(s.records))
	for key, rec := range s.records {
		mapKey := mapKeyFromRecord(key, rec.Metadata)
		if mapKeyFilter != "" && mapKey != mapKeyFilter {
			continue
		}
		out = append(out, KeySummary{ModelKey: key, MapKey: mapKey, UpdatedAt: rec.UpdatedAt})
	}
	return out
}
