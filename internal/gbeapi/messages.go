package gbeapi

import "tankarena/internal/protocol"

// decodeAIInput converts one loosely-typed JSON event object into an
// InputMessage, tolerating the AI client's convenience shape (no "type"
// field needed since POST /session/{id}/ai-input is always role=ai input).
func decodeAIInput(raw map[string]any) (protocol.InputMessage, bool) {
	tankID, _ := raw["tankId"].(string)
	if tankID == "" {
		return protocol.InputMessage{}, false
	}
	move, _ := raw["move"].(string)
	fire, _ := raw["fire"].(bool)
	return protocol.InputMessage{
		Type:   "input",
		Role:   protocol.RoleAI,
		TankID: tankID,
		Move:   protocol.Move(move),
		Fire:   fire,
	}, true
}
