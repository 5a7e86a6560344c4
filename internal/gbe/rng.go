package gbe

import "math/rand"

// rngState wraps a deterministic per-session RNG. The seed is rolled
// forward once per tick (mirroring the engine's reseed-per-tick pattern),
// so that two replays starting from the same seed and input sequence
// produce byte-identical snapshots (§8 "determinism given seed").
type rngState struct {
	r    *rand.Rand
	seed int64
}

func newRNGState(seed int64) *rngState {
	return &rngState{r: rand.New(rand.NewSource(seed)), seed: seed}
}

// advanceTick reseeds the generator from its own next value, matching the
// tick-engine's reseed discipline.
func (s *rngState) advanceTick() {
	s.seed = s.r.Int63()
	s.r.Seed(s.seed)
}

func (s *rngState) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.Intn(n)
}
