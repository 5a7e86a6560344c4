package msstore

import (
	"fmt"
	"time"
)

// Allocate implements GET /api/rl-allocate/{mapKey}?baseKey= (§4.4): pop the
// free-list head for mapKey if one exists, else mint a fresh key by cloning
// the record of the mapKey's most recently allocated key (popped or minted,
// if it has a stored record). isNew reports whether a
// fresh key was minted (true) versus an existing free-list key reused
// (false) — distinct from clonedFrom, which is set only when a fresh mint
// also cloned a prior record's weights, matching
// original_source/DeepRL/backend/server.py's allocate handler.
func (s *Store) Allocate(mapKey, baseKey string) (modelKey string, isNew bool, clonedFrom string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if list := s.freeList[mapKey]; len(list) > 0 {
		key := list[0]
		s.freeList[mapKey] = list[1:]
		s.lastPopped[mapKey] = key
		return key, false, "", nil
	}

	newKey := fmt.Sprintf("%s-%s-%d", baseKey, mapKey, time.Now().UTC().UnixNano())
	cloneSource := s.lastPopped[mapKey]
	s.lastPopped[mapKey] = newKey
	if cloneSource != "" {
		if rec, ok := s.records[cloneSource]; ok {
			clone := rec
			clone.ModelKey = newKey
			clone.UpdatedAt = time.Now().UTC()
			s.records[newKey] = clone
			if err := s.persist(); err != nil {
				return "", true, "", err
			}
			return newKey, true, cloneSource, nil
		}
	}
	return newKey, true, "", nil
}

// Release implements POST /api/rl-release/{mapKey} (§4.4): appends modelKey
// back onto the free-list tail. There is no server-side lease — callers are
// trusted to release every key they allocate exactly once.
func (s *Store) Release(mapKey, modelKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeList[mapKey] = append(s.freeList[mapKey], modelKey)
}
