package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/locks"
	"github.com/boardsite/truthstate/state"
)

// Action is one mutation request against a session
type Action struct {
	// Name identifies the action for the channel's game engine
	Name string `json:"action" validate:"required"`
	// Payload is the action body, passed through to the engine
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RejectedError indicates a game engine refused an action. The session
// state is untouched and no event is published.
type RejectedError struct {
	// Reason is the engine's explanation for the refusal
	Reason string
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("action rejected: %s", e.Reason)
}

// TransitionFunc computes the next state document for a session. prev is
// nil when the session has no stored state yet. Returning RejectedError
// aborts the mutation without touching the session.
type TransitionFunc func(
	ctxt context.Context, prev json.RawMessage, action Action,
) (json.RawMessage, error)

// MutationResult is the outcome of one applied mutation
type MutationResult struct {
	// Snapshot is the session state as written
	Snapshot state.Snapshot
	// Sequence is the channel sequence of the broadcast event
	Sequence uint64
}

// Coordinator runs session mutations under per-session mutual exclusion.
// Every mutation follows acquire, read, transition, write, publish,
// release; the transition alone decides whether the mutation proceeds.
type Coordinator interface {
	// Mutate applies one action to a session via transition
	Mutate(
		ctxt context.Context,
		channel string,
		session string,
		action Action,
		transition TransitionFunc,
	) (*MutationResult, error)
	// Fetch reads a session's current snapshot without locking
	Fetch(ctxt context.Context, session string) (*state.Snapshot, error)
	// Teardown removes a session and broadcasts a terminal event
	Teardown(ctxt context.Context, channel string, session string) error
}

// coordinatorImpl implements Coordinator
type coordinatorImpl struct {
	common.Component
	store       state.Store
	lockSet     locks.KeyedLock
	lockTimeout time.Duration
}

// DefineCoordinator create a new session mutation Coordinator
func DefineCoordinator(
	store state.Store, lockTimeout time.Duration,
) (Coordinator, error) {
	logTags := log.Fields{
		"module": "session", "component": "coordinator",
	}
	lockSet, err := locks.GetKeyedLock("session-coordinator")
	if err != nil {
		return nil, err
	}
	return &coordinatorImpl{
		Component:   common.Component{LogTags: logTags},
		store:       store,
		lockSet:     lockSet,
		lockTimeout: lockTimeout,
	}, nil
}

func (c *coordinatorImpl) Mutate(
	ctxt context.Context,
	channel string,
	session string,
	action Action,
	transition TransitionFunc,
) (*MutationResult, error) {
	lockCtxt, lockCancel := context.WithTimeout(ctxt, c.lockTimeout)
	defer lockCancel()
	guard, err := c.lockSet.Acquire(lockCtxt, session)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Session %s mutation blocked on lock", session)
		return nil, err
	}
	defer guard.Release()

	prior, err := c.store.Get(ctxt, session)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Unable to read session %s", session)
		return nil, err
	}
	var priorData json.RawMessage
	if prior != nil {
		priorData = prior.Data
	}

	// The transition's verdict is final. Errors, including RejectedError,
	// pass through verbatim with the session untouched.
	next, err := transition(ctxt, priorData, action)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctxt, session, next); err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Unable to write session %s", session)
		return nil, err
	}
	seq, err := c.store.Publish(ctxt, channel, session, "state_update", next)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Unable to broadcast update for session %s", session)
		return nil, err
	}

	return &MutationResult{
		Snapshot: state.Snapshot{
			Session: session, Data: next, UpdatedAt: time.Now().UTC(),
		},
		Sequence: seq,
	}, nil
}

func (c *coordinatorImpl) Fetch(
	ctxt context.Context, session string,
) (*state.Snapshot, error) {
	return c.store.Get(ctxt, session)
}

func (c *coordinatorImpl) Teardown(
	ctxt context.Context, channel string, session string,
) error {
	lockCtxt, lockCancel := context.WithTimeout(ctxt, c.lockTimeout)
	defer lockCancel()
	guard, err := c.lockSet.Acquire(lockCtxt, session)
	if err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Session %s teardown blocked on lock", session)
		return err
	}
	defer guard.Release()

	if err := c.store.Delete(ctxt, session); err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Unable to delete session %s", session)
		return err
	}
	if _, err := c.store.Publish(ctxt, channel, session, "session_ended", nil); err != nil {
		log.WithError(err).WithFields(c.LogTags).
			Errorf("Unable to broadcast teardown of session %s", session)
		return err
	}
	log.WithFields(c.LogTags).Infof("Tore down session %s on channel %s", session, channel)
	return nil
}
