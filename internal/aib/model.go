package aib

import (
	"log"

	"tankarena/internal/config"
	"tankarena/internal/msclient"
	"tankarena/internal/msmodel"
	"tankarena/internal/msstore"
	"tankarena/internal/protocol"
)

// mlpHiddenSize is fixed by §4.3 step 2: "create a fresh MLP-Q model with
// hidden size 64 and this stateSize".
const mlpHiddenSize = 64

// modelHolder owns one session's trainable model (shared by every AI tank
// in that session) plus its MS bookkeeping:
// the modelKey it was allocated, and how many training steps have elapsed
// since the last successful save.
type modelHolder struct {
	modelKey       string
	mapKey         string
	instance       *msmodel.Instance
	lastSavedSteps int
}

// attachModel implements §4.3's "Model allocation" admission path for one
// session: the modelKey was already minted by the game backend at session
// creation (carried in the session summary, see internal/gbe/registry.go's
// CreateSession); the AI backend's job here is only to fetch that key's
// weights (or start fresh if MS has never seen it) and build a trainable
// instance from them.
func attachModel(ms *msclient.Client, modelKey, mapKey string, cfg config.AIBConfig, stateSize int, seed int64) *modelHolder {
	rec, ok, err := ms.GetModel(modelKey)
	if err != nil {
		log.Printf("aib: fetch model %s failed, starting fresh: %v", modelKey, err)
		ok = false
	}
	if !ok {
		inst := msmodel.NewMLP(stateSize, mlpHiddenSize, protocol.ActionCount,
			cfg.LearningRate, cfg.Gamma, cfg.EpsilonStart, cfg.EpsilonMin, cfg.EpsilonDecay, seed)
		return &modelHolder{modelKey: modelKey, mapKey: mapKey, instance: inst}
	}

	payload := protocol.ModelPayload{
		ModelTopology:       rec.ModelTopology,
		WeightSpecs:         rec.WeightSpecs,
		WeightDataBase64:    rec.WeightDataBase64,
		UserDefinedMetadata: rec.Metadata,
	}
	inst, err := msmodel.FromPayload(payload, cfg.LearningRate, cfg.Gamma, cfg.EpsilonStart, cfg.EpsilonMin, cfg.EpsilonDecay, seed)
	if err != nil || inst.StateSize != stateSize {
		log.Printf("aib: model %s stateSize mismatch or decode error (%v), starting fresh", modelKey, err)
		inst = msmodel.NewMLP(stateSize, mlpHiddenSize, protocol.ActionCount,
			cfg.LearningRate, cfg.Gamma, cfg.EpsilonStart, cfg.EpsilonMin, cfg.EpsilonDecay, seed)
		return &modelHolder{modelKey: modelKey, mapKey: mapKey, instance: inst}
	}
	return &modelHolder{modelKey: modelKey, mapKey: mapKey, instance: inst, lastSavedSteps: inst.Steps}
}

// dueForSave reports whether this holder's model has trained enough steps
// since its last save to warrant enqueueing another one (§4.3 step 4).
func (h *modelHolder) dueForSave(saveEveryNSteps int) bool {
	return h.instance.Steps-h.lastSavedSteps >= saveEveryNSteps
}

// toRecord packs the current weights into a model-store record for saving.
func (h *modelHolder) toRecord() msstore.Record {
	payload := h.instance.ToPayload(map[string]any{"mapKey": h.mapKey})
	return msstore.Record{
		ModelKey:         h.modelKey,
		ModelTopology:    payload.ModelTopology,
		WeightSpecs:      payload.WeightSpecs,
		WeightDataBase64: payload.WeightDataBase64,
		Metadata:         payload.UserDefinedMetadata,
		TrainingConfig: map[string]any{
			"steps":    h.instance.Steps,
			"episodes": h.instance.Episodes,
			"epsilon":  h.instance.Epsilon,
		},
	}
}
