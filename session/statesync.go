package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// StateSyncTransition is the built-in game engine. It treats the snapshot
// as an opaque JSON document owned by the clients and supports two actions:
//
//	"replace" stores the payload as the new document.
//	"merge" overlays the payload's top-level keys onto the document.
//
// Anything else is rejected. Game-specific engines replace this per channel
// when the platform embeds real rule enforcement.
func StateSyncTransition(
	ctxt context.Context, prev json.RawMessage, action Action,
) (json.RawMessage, error) {
	switch action.Name {
	case "replace":
		if len(action.Payload) == 0 || !json.Valid(action.Payload) {
			return nil, RejectedError{Reason: "replace requires a JSON payload"}
		}
		return action.Payload, nil

	case "merge":
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(action.Payload, &overlay); err != nil {
			return nil, RejectedError{Reason: "merge requires a JSON object payload"}
		}
		merged := map[string]json.RawMessage{}
		if len(prev) > 0 {
			if err := json.Unmarshal(prev, &merged); err != nil {
				return nil, RejectedError{
					Reason: "current state is not a JSON object, merge not possible",
				}
			}
		}
		for key, val := range overlay {
			merged[key] = val
		}
		return json.Marshal(merged)

	default:
		return nil, RejectedError{
			Reason: fmt.Sprintf("unsupported action %s", action.Name),
		}
	}
}

// DefaultEngines registers the built-in state-sync engine for every channel
func DefaultEngines(channels []string) map[string]TransitionFunc {
	engines := map[string]TransitionFunc{}
	for _, channel := range channels {
		engines[channel] = StateSyncTransition
	}
	return engines
}
