package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBackendUnavailable indicates the backing store could not be reached.
// Callers check for it with errors.Is; the wrapped message carries the
// backend specific cause.
var ErrBackendUnavailable = errors.New("state backend unavailable")

// Snapshot is one session's full game state as last written
type Snapshot struct {
	// Session is the owning session ID
	Session string `json:"session"`
	// Data is the opaque state document
	Data json.RawMessage `json:"data"`
	// UpdatedAt is when this snapshot was written
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one broadcast message on a game channel
type Event struct {
	// Channel is the game channel the event was published on
	Channel string `json:"channel"`
	// Session is the session the event concerns
	Session string `json:"session"`
	// Name identifies the event type
	Name string `json:"event"`
	// Payload is the event body
	Payload json.RawMessage `json:"payload,omitempty"`
	// Sequence orders events within one channel
	Sequence uint64 `json:"sequence"`
}

// Store is the session state persistence and event fan-in interface.
//
// Get returns (nil, nil) when the session has no stored state; an error
// return always means the lookup itself failed.
type Store interface {
	// Get fetches one session's current snapshot
	Get(ctxt context.Context, session string) (*Snapshot, error)
	// Set writes one session's snapshot, replacing any prior value
	Set(ctxt context.Context, session string, data json.RawMessage) error
	// Delete removes one session's snapshot. Deleting an absent session
	// is not an error.
	Delete(ctxt context.Context, session string) error
	// Publish broadcasts one event on a game channel, returning the
	// sequence number assigned to it
	Publish(
		ctxt context.Context,
		channel string,
		session string,
		event string,
		payload json.RawMessage,
	) (uint64, error)
	// Subscribe starts receiving events published on a game channel. The
	// returned channel closes when ctxt ends or the store closes.
	Subscribe(ctxt context.Context, channel string) (<-chan Event, error)
	// Ready verifies the backend is reachable
	Ready(ctxt context.Context) error
	// Close releases all backend resources
	Close(ctxt context.Context) error
}

// stateKey builds the storage key for one session's snapshot
func stateKey(prefix, session string) string {
	return fmt.Sprintf("%s:state:%s", prefix, session)
}

// seqKey builds the storage key for one channel's sequence counter
func seqKey(prefix, channel string) string {
	return fmt.Sprintf("%s:seq:%s", prefix, channel)
}

// pubsubChannel builds the pub/sub channel name for one game channel
func pubsubChannel(prefix, channel string) string {
	return fmt.Sprintf("%s:game:%s", prefix, channel)
}

// natsSubject builds the JetStream subject for one game channel
func natsSubject(prefix, channel string) string {
	return fmt.Sprintf("%s.game.%s", prefix, channel)
}

// natsStream builds the JetStream stream name for one game channel
func natsStream(prefix, channel string) string {
	return fmt.Sprintf("%s-game-%s", strings.ReplaceAll(prefix, ".", "-"), channel)
}

// natsBucket builds the JetStream KV bucket name holding session snapshots
func natsBucket(prefix string) string {
	return fmt.Sprintf("%s-state", strings.ReplaceAll(prefix, ".", "-"))
}
