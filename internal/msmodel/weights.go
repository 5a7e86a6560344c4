// Package msmodel defines the model weight layouts shared by the model
// store and the AI backend: a "linear-q" single-layer topology and an
// "mlp-q" one-hidden-layer topology, both packed the same way on the wire
// (§6: base64 little-endian float32).
package msmodel

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"tankarena/internal/protocol"
)

// FormatLinearQ is a single dense layer: stateSize -> actionSize.
const FormatLinearQ = "linear-q"

// FormatMLPQ is a two-layer MLP: stateSize -> hiddenSize -> actionSize,
// with a ReLU nonlinearity between layers.
const FormatMLPQ = "mlp-q"

// LinearWeights holds the flat parameters of a linear-q model. Kernel is
// row-major [action][state] (q = kernel @ state + bias), matching the
// original implementation's array layout.
type LinearWeights struct {
	Kernel []float32 // actionSize * stateSize
	Bias   []float32 // actionSize
}

// MLPWeights holds the flat parameters of an mlp-q model. W1 is row-major
// [hidden][state], W2 is row-major [action][hidden]:
//
//	z1 = w1 @ state + b1; a1 = relu(z1); q = w2 @ a1 + b2
type MLPWeights struct {
	W1 []float32 // hiddenSize * stateSize
	B1 []float32 // hiddenSize
	W2 []float32 // actionSize * hiddenSize
	B2 []float32 // actionSize
}

// EncodeLinear packs a linear-q model's weights into a ModelPayload.
func EncodeLinear(stateSize, actionSize int, w LinearWeights, metadata map[string]any) protocol.ModelPayload {
	blob := packFloat32(w.Kernel, w.Bias)
	return protocol.ModelPayload{
		ModelTopology: protocol.ModelTopology{
			Format: FormatLinearQ, StateSize: stateSize, ActionSize: actionSize,
		},
		WeightSpecs: []protocol.WeightSpec{
			{Name: "kernel", Shape: []int{actionSize, stateSize}, Dtype: "float32"},
			{Name: "bias", Shape: []int{actionSize}, Dtype: "float32"},
		},
		WeightDataBase64:    base64.StdEncoding.EncodeToString(blob),
		UserDefinedMetadata: metadata,
	}
}

// DecodeLinear unpacks a ModelPayload known to hold a linear-q model.
func DecodeLinear(p protocol.ModelPayload) (LinearWeights, error) {
	stateSize, actionSize := p.ModelTopology.StateSize, p.ModelTopology.ActionSize
	flat, err := unpackFloat32(p.WeightDataBase64)
	if err != nil {
		return LinearWeights{}, err
	}
	kernelN := actionSize * stateSize
	want := kernelN + actionSize
	if len(flat) != want {
		return LinearWeights{}, fmt.Errorf("msmodel: linear-q payload has %d floats, want %d", len(flat), want)
	}
	return LinearWeights{
		Kernel: flat[:kernelN],
		Bias:   flat[kernelN:],
	}, nil
}

// EncodeMLP packs an mlp-q model's weights into a ModelPayload.
func EncodeMLP(stateSize, hiddenSize, actionSize int, w MLPWeights, metadata map[string]any) protocol.ModelPayload {
	blob := packFloat32(w.W1, w.B1, w.W2, w.B2)
	return protocol.ModelPayload{
		ModelTopology: protocol.ModelTopology{
			Format: FormatMLPQ, StateSize: stateSize, ActionSize: actionSize, HiddenSize: hiddenSize,
		},
		WeightSpecs: []protocol.WeightSpec{
			{Name: "w1", Shape: []int{hiddenSize, stateSize}, Dtype: "float32"},
			{Name: "b1", Shape: []int{hiddenSize}, Dtype: "float32"},
			{Name: "w2", Shape: []int{actionSize, hiddenSize}, Dtype: "float32"},
			{Name: "b2", Shape: []int{actionSize}, Dtype: "float32"},
		},
		WeightDataBase64:    base64.StdEncoding.EncodeToString(blob),
		UserDefinedMetadata: metadata,
	}
}

// DecodeMLP unpacks a ModelPayload known to hold an mlp-q model.
func DecodeMLP(p protocol.ModelPayload) (MLPWeights, error) {
	stateSize, hiddenSize, actionSize := p.ModelTopology.StateSize, p.ModelTopology.HiddenSize, p.ModelTopology.ActionSize
	flat, err := unpackFloat32(p.WeightDataBase64)
	if err != nil {
		return MLPWeights{}, err
	}
	w1n, b1n, w2n, b2n := hiddenSize*stateSize, hiddenSize, actionSize*hiddenSize, actionSize
	want := w1n + b1n + w2n + b2n
	if len(flat) != want {
		return MLPWeights{}, fmt.Errorf("msmodel: mlp-q payload has %d floats, want %d", len(flat), want)
	}
	return MLPWeights{
		W1: flat[:w1n],
		B1: flat[w1n : w1n+b1n],
		W2: flat[w1n+b1n : w1n+b1n+w2n],
		B2: flat[w1n+b1n+w2n:],
	}, nil
}

// packFloat32 concatenates one or more float32 slices into a single
// little-endian byte blob, in the order given (§6: "kernel,bias" /
// "w1,b1,w2,b2").
func packFloat32(slices ...[]float32) []byte {
	n := 0
	for _, s := range slices {
		n += len(s)
	}
	out := make([]byte, n*4)
	off := 0
	for _, s := range slices {
		for _, v := range s {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
			off += 4
		}
	}
	return out
}

func unpackFloat32(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("msmodel: decode weight base64: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("msmodel: weight blob length %d not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
