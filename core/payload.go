package core

import (
	"encoding/json"
	"fmt"
)

// ToParameters flattens the payload into the generic parameter map carried
// by queue execution messages. The JSON round trip keeps the wire field
// names authoritative.
func (p QueueJobPayload) ToParameters() (map[string]any, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("core: encode queue payload: %w", err)
	}
	params := map[string]any{}
	if err := json.Unmarshal(encoded, &params); err != nil {
		return nil, fmt.Errorf("core: decode queue payload parameters: %w", err)
	}
	return params, nil
}

// PayloadFromParameters rebuilds a queue payload from message parameters.
func PayloadFromParameters(params map[string]any) (QueueJobPayload, error) {
	if len(params) == 0 {
		return QueueJobPayload{}, fmt.Errorf("core: queue payload parameters are required")
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return QueueJobPayload{}, fmt.Errorf("core: encode queue payload parameters: %w", err)
	}
	var payload QueueJobPayload
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return QueueJobPayload{}, fmt.Errorf("core: decode queue payload: %w", err)
	}
	return payload, nil
}
