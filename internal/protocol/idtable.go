package protocol

import "strconv"

// IDTable compresses full ids (uuids) down to short base36 tokens for wire
// transmission, and translates them back. Scope is per-session; the counter
// is safe to restart at 1 in every new session since no cross-session
// identity is implied by a short id (see spec design notes: "not a security
// boundary").
type IDTable struct {
	fullToShort map[string]string
	shortToFull map[string]string
	counter     uint64
}

// NewIDTable returns an empty translation table.
func NewIDTable() *IDTable {
	return &IDTable{
		fullToShort: make(map[string]string),
		shortToFull: make(map[string]string),
	}
}

// ToNetworkID returns the short id for a full id, minting one on first use.
func (t *IDTable) ToNetworkID(full string) string {
	if short, ok := t.fullToShort[full]; ok {
		return short
	}
	t.counter++
	short := strconv.FormatUint(t.counter, 36)
	t.fullToShort[full] = short
	t.shortToFull[short] = full
	return short
}

// ResolveNetworkID returns the full id for a short id. For an unknown short
// id it returns "" and false.
func (t *IDTable) ResolveNetworkID(short string) (string, bool) {
	full, ok := t.shortToFull[short]
	return full, ok
}
