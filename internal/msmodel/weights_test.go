package msmodel_test

import (
	"testing"

	"tankarena/internal/msmodel"
	"tankarena/internal/protocol"
)

func TestEncodeDecodeLinearRoundTrip(t *testing.T) {
	w := msmodel.LinearWeights{
		Kernel: []float32{1, 2, 3, 4, 5, 6},
		Bias:   []float32{0.5, -0.5},
	}
	payload := msmodel.EncodeLinear(3, 2, w, map[string]any{"mapKey": "arena1"})

	if payload.ModelTopology.Format != msmodel.FormatLinearQ {
		t.Fatalf("format mismatch: got %s", payload.ModelTopology.Format)
	}
	if len(payload.WeightSpecs) != 2 {
		t.Fatalf("want 2 weight specs, got %d", len(payload.WeightSpecs))
	}

	got, err := msmodel.DecodeLinear(payload)
	if err != nil {
		t.Fatalf("DecodeLinear: %v", err)
	}
	for i, v := range w.Kernel {
		if got.Kernel[i] != v {
			t.Errorf("kernel[%d]: got %f, want %f", i, got.Kernel[i], v)
		}
	}
	for i, v := range w.Bias {
		if got.Bias[i] != v {
			t.Errorf("bias[%d]: got %f, want %f", i, got.Bias[i], v)
		}
	}
}

func TestEncodeDecodeMLPRoundTrip(t *testing.T) {
	w := msmodel.MLPWeights{
		W1: make([]float32, 4*3),
		B1: make([]float32, 4),
		W2: make([]float32, 2*4),
		B2: make([]float32, 2),
	}
	for i := range w.W1 {
		w.W1[i] = float32(i) * 0.1
	}
	for i := range w.W2 {
		w.W2[i] = float32(i) * -0.2
	}

	payload := msmodel.EncodeMLP(3, 4, 2, w, nil)
	got, err := msmodel.DecodeMLP(payload)
	if err != nil {
		t.Fatalf("DecodeMLP: %v", err)
	}
	if len(got.W1) != len(w.W1) || len(got.W2) != len(w.W2) {
		t.Fatalf("decoded shapes mismatch: w1=%d w2=%d", len(got.W1), len(got.W2))
	}
	for i := range w.W1 {
		if got.W1[i] != w.W1[i] {
			t.Errorf("w1[%d]: got %f, want %f", i, got.W1[i], w.W1[i])
		}
	}
}

func TestDecodeLinearRejectsWrongLength(t *testing.T) {
	payload := msmodel.EncodeLinear(3, 2, msmodel.LinearWeights{
		Kernel: []float32{1, 2, 3, 4, 5, 6},
		Bias:   []float32{0, 0},
	}, nil)
	payload.ModelTopology.StateSize = 99 // now kernelN math won't match the blob

	if _, err := msmodel.DecodeLinear(payload); err == nil {
		t.Fatal("expected an error decoding a payload whose topology no longer matches its blob")
	}
}

func TestChooseActionDeterministicGivenSeed(t *testing.T) {
	state := make([]float32, protocol.StackedFeatureCount)
	for i := range state {
		state[i] = float32(i%7) * 0.01
	}

	a := msmodel.NewMLP(protocol.StackedFeatureCount, 8, protocol.ActionCount, 0.01, 0.9, 1.0, 0.05, 0.995, 42)
	b := msmodel.NewMLP(protocol.StackedFeatureCount, 8, protocol.ActionCount, 0.01, 0.9, 1.0, 0.05, 0.995, 42)

	for step := 0; step < 20; step++ {
		actionA := a.ChooseAction(state)
		actionB := b.ChooseAction(state)
		if actionA != actionB {
			t.Fatalf("step %d: two instances built from the same seed diverged: %d vs %d", step, actionA, actionB)
		}
		a.Train(state, actionA, 1.0, state, false)
		b.Train(state, actionB, 1.0, state, false)
	}
}

func TestTrainDecaysEpsilonTowardFloor(t *testing.T) {
	inst := msmodel.NewLinear(4, protocol.ActionCount, 0.01, 0.9, 1.0, 0.1, 0.5, 7)
	state := make([]float32, 4)
	for i := 0; i < 50; i++ {
		inst.Train(state, 0, 0, state, false)
	}
	if inst.Epsilon < 0.1 {
		t.Fatalf("epsilon fell below its floor: got %f, want >= 0.1", inst.Epsilon)
	}
	if inst.Epsilon > 0.11 {
		t.Fatalf("epsilon did not decay toward its floor after 50 steps: got %f", inst.Epsilon)
	}
}
