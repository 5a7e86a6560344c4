package gbe

import "errors"

// ErrSessionNotFound is returned by registry lookups for an unknown
// session id (HTTP 404 per §6).
var ErrSessionNotFound = errors.New("gbe: session not found")

// ErrNoSpawnAvailable is returned when a player or AI tank cannot find a
// free spawn rect (HTTP 400 per §6; §7 "spawn cannot find free rect").
var ErrNoSpawnAvailable = errors.New("gbe: no free spawn point available")
