package msmodel

import (
	"math"
	"math/rand"

	"tankarena/internal/protocol"
)

// Instance is one trainable Q model held by the AI backend: either a
// linear-q or an mlp-q topology, with its own hyperparameters, step/episode
// counters, and a private RNG (kept separate from the deterministic
// per-tick game RNG; training exploration is not part of the replay
// contract). Grounded directly on original_source's LinearQModel /
// MlpQModel dataclasses.
type Instance struct {
	Format     string
	StateSize  int
	ActionSize int
	HiddenSize int // 0 for linear-q

	LearningRate float64
	Gamma        float64
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64

	Kernel []float32 // linear-q: actionSize*stateSize
	Bias   []float32 // linear-q: actionSize

	W1 []float32 // mlp-q: hiddenSize*stateSize
	B1 []float32 // mlp-q: hiddenSize
	W2 []float32 // mlp-q: actionSize*hiddenSize
	B2 []float32 // mlp-q: actionSize

	Steps    int
	Episodes int

	rng *rand.Rand
}

// NewLinear creates a freshly initialized linear-q instance: small random
// kernel, zero bias (matches `np.random.randn(...)*0.01`).
func NewLinear(stateSize, actionSize int, lr, gamma, epsStart, epsMin, epsDecay float64, seed int64) *Instance {
	rng := rand.New(rand.NewSource(seed))
	inst := &Instance{
		Format: FormatLinearQ, StateSize: stateSize, ActionSize: actionSize,
		LearningRate: lr, Gamma: gamma, Epsilon: epsStart, EpsilonMin: epsMin, EpsilonDecay: epsDecay,
		Kernel: make([]float32, actionSize*stateSize),
		Bias:   make([]float32, actionSize),
		rng:    rng,
	}
	for i := range inst.Kernel {
		inst.Kernel[i] = float32(rng.NormFloat64() * 0.01)
	}
	return inst
}

// NewMLP creates a freshly initialized mlp-q instance.
func NewMLP(stateSize, hiddenSize, actionSize int, lr, gamma, epsStart, epsMin, epsDecay float64, seed int64) *Instance {
	rng := rand.New(rand.NewSource(seed))
	inst := &Instance{
		Format: FormatMLPQ, StateSize: stateSize, ActionSize: actionSize, HiddenSize: hiddenSize,
		LearningRate: lr, Gamma: gamma, Epsilon: epsStart, EpsilonMin: epsMin, EpsilonDecay: epsDecay,
		W1:  make([]float32, hiddenSize*stateSize),
		B1:  make([]float32, hiddenSize),
		W2:  make([]float32, actionSize*hiddenSize),
		B2:  make([]float32, actionSize),
		rng: rng,
	}
	for i := range inst.W1 {
		inst.W1[i] = float32(rng.NormFloat64() * 0.01)
	}
	for i := range inst.W2 {
		inst.W2[i] = float32(rng.NormFloat64() * 0.01)
	}
	return inst
}

// FromPayload reconstructs an instance from a decoded model payload,
// preserving the hyperparameters passed in (the wire payload carries only
// weights and topology, not the AIB's live training config).
func FromPayload(p protocol.ModelPayload, lr, gamma, epsStart, epsMin, epsDecay float64, seed int64) (*Instance, error) {
	switch p.ModelTopology.Format {
	case FormatMLPQ:
		w, err := DecodeMLP(p)
		if err != nil {
			return nil, err
		}
		inst := NewMLP(p.ModelTopology.StateSize, p.ModelTopology.HiddenSize, p.ModelTopology.ActionSize, lr, gamma, epsStart, epsMin, epsDecay, seed)
		inst.W1, inst.B1, inst.W2, inst.B2 = w.W1, w.B1, w.W2, w.B2
		return inst, nil
	default:
		w, err := DecodeLinear(p)
		if err != nil {
			return nil, err
		}
		inst := NewLinear(p.ModelTopology.StateSize, p.ModelTopology.ActionSize, lr, gamma, epsStart, epsMin, epsDecay, seed)
		inst.Kernel, inst.Bias = w.Kernel, w.Bias
		return inst, nil
	}
}

// ToPayload packs the instance's current weights into a wire payload.
func (m *Instance) ToPayload(metadata map[string]any) protocol.ModelPayload {
	if m.Format == FormatMLPQ {
		return EncodeMLP(m.StateSize, m.HiddenSize, m.ActionSize, MLPWeights{m.W1, m.B1, m.W2, m.B2}, metadata)
	}
	return EncodeLinear(m.StateSize, m.ActionSize, LinearWeights{m.Kernel, m.Bias}, metadata)
}

// forwardLinear returns Q(state) for a linear-q instance.
func (m *Instance) forwardLinear(state []float32) []float32 {
	q := make([]float32, m.ActionSize)
	for a := 0; a < m.ActionSize; a++ {
		sum := float32(0)
		row := m.Kernel[a*m.StateSize : (a+1)*m.StateSize]
		for s, v := range state {
			sum += row[s] * v
		}
		q[a] = sum + m.Bias[a]
	}
	return q
}

// forwardMLP returns (z1, a1, q) for an mlp-q instance.
func (m *Instance) forwardMLP(state []float32) (z1, a1, q []float32) {
	z1 = make([]float32, m.HiddenSize)
	for h := 0; h < m.HiddenSize; h++ {
		sum := float32(0)
		row := m.W1[h*m.StateSize : (h+1)*m.StateSize]
		for s, v := range state {
			sum += row[s] * v
		}
		z1[h] = sum + m.B1[h]
	}
	a1 = make([]float32, m.HiddenSize)
	for h, v := range z1 {
		if v > 0 {
			a1[h] = v
		}
	}
	q = make([]float32, m.ActionSize)
	for a := 0; a < m.ActionSize; a++ {
		sum := float32(0)
		row := m.W2[a*m.HiddenSize : (a+1)*m.HiddenSize]
		for h, v := range a1 {
			sum += row[h] * v
		}
		q[a] = sum + m.B2[a]
	}
	return z1, a1, q
}

// QValues returns Q(state) for either topology.
func (m *Instance) QValues(state []float32) []float32 {
	if m.Format == FormatMLPQ {
		_, _, q := m.forwardMLP(state)
		return q
	}
	return m.forwardLinear(state)
}

// ChooseAction applies an ε-greedy policy over the action space.
func (m *Instance) ChooseAction(state []float32) int {
	if m.rng.Float64() < m.Epsilon {
		return m.rng.Intn(m.ActionSize)
	}
	return argmax(m.QValues(state))
}

// Train applies one Q-learning SGD step and returns (tdError, qMean) for
// metrics reporting (§4.3 step 3: "accumulate TD loss and Q-mean").
func (m *Instance) Train(state []float32, action int, reward float64, nextState []float32, done bool) (tdError, qMean float64) {
	if m.Format == FormatMLPQ {
		tdError, qMean = m.trainMLP(state, action, reward, nextState, done)
	} else {
		tdError, qMean = m.trainLinear(state, action, reward, nextState, done)
	}
	m.Steps++
	m.Epsilon = math.Max(m.EpsilonMin, m.Epsilon*m.EpsilonDecay)
	return tdError, qMean
}

func (m *Instance) trainLinear(state []float32, action int, reward float64, nextState []float32, done bool) (float64, float64) {
	q := m.forwardLinear(state)
	target := reward
	if !done {
		target += m.Gamma * float64(maxOf(m.forwardLinear(nextState)))
	}
	errF := float32(target) - q[action]
	row := m.Kernel[action*m.StateSize : (action+1)*m.StateSize]
	lr := float32(m.LearningRate)
	for s, v := range state {
		row[s] += lr * errF * v
	}
	m.Bias[action] += lr * errF
	return float64(errF), meanOf(q)
}

func (m *Instance) trainMLP(state []float32, action int, reward float64, nextState []float32, done bool) (float64, float64) {
	z1, a1, q := m.forwardMLP(state)
	target := reward
	if !done {
		_, _, qNext := m.forwardMLP(nextState)
		target += m.Gamma * float64(maxOf(qNext))
	}
	errF := float32(target) - q[action]
	lr := float32(m.LearningRate)

	// dq is all-zero except at the taken action (only that head sees error).
	dq := make([]float32, m.ActionSize)
	dq[action] = errF

	// dw2[a][h] = dq[a] * a1[h]; db2 = dq
	for a := 0; a < m.ActionSize; a++ {
		row := m.W2[a*m.HiddenSize : (a+1)*m.HiddenSize]
		for h, av := range a1 {
			row[h] += lr * dq[a] * av
		}
		m.B2[a] += lr * dq[a]
	}

	// da1 = w2^T @ dq; dz1 = da1 * (z1 > 0)
	da1 := make([]float32, m.HiddenSize)
	for h := 0; h < m.HiddenSize; h++ {
		sum := float32(0)
		for a := 0; a < m.ActionSize; a++ {
			sum += m.W2[a*m.HiddenSize+h] * dq[a]
		}
		da1[h] = sum
	}
	dz1 := make([]float32, m.HiddenSize)
	for h, v := range z1 {
		if v > 0 {
			dz1[h] = da1[h]
		}
	}

	// dw1[h][s] = dz1[h] * state[s]; db1 = dz1
	for h := 0; h < m.HiddenSize; h++ {
		row := m.W1[h*m.StateSize : (h+1)*m.StateSize]
		for s, sv := range state {
			row[s] += lr * dz1[h] * sv
		}
		m.B1[h] += lr * dz1[h]
	}

	return float64(errF), meanOf(q)
}

func argmax(v []float32) int {
	best, bestI := v[0], 0
	for i, x := range v {
		if x > best {
			best, bestI = x, i
		}
	}
	return bestI
}

func maxOf(v []float32) float32 {
	best := v[0]
	for _, x := range v {
		if x > best {
			best = x
		}
	}
	return best
}

func meanOf(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x)
	}
	return sum / float64(len(v))
}
