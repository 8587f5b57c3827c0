package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/core"
	"github.com/boardsite/truthstate/locks"
	"github.com/boardsite/truthstate/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCoordinatorMutationPipeline(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	store, err := state.CreateInMemoryStore(8)
	assert.Nil(err)
	uut, err := DefineCoordinator(store, time.Second)
	assert.Nil(err)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(store.Close(utCtxt))
	}()

	session := uuid.New().String()

	events, err := store.Subscribe(utCtxt, "cabo")
	assert.Nil(err)

	// Case 0: first mutation creates the session
	result, err := uut.Mutate(
		utCtxt, "cabo", session,
		Action{Name: "replace", Payload: json.RawMessage(`{"phase":"lobby"}`)},
		StateSyncTransition,
	)
	assert.Nil(err)
	assert.Equal(uint64(1), result.Sequence)
	assert.Equal(json.RawMessage(`{"phase":"lobby"}`), result.Snapshot.Data)
	select {
	case msg := <-events:
		assert.Equal("state_update", msg.Name)
		assert.Equal(session, msg.Session)
		assert.Equal(uint64(1), msg.Sequence)
		assert.Equal(json.RawMessage(`{"phase":"lobby"}`), msg.Payload)
	case <-time.After(time.Second):
		assert.False(true)
	}

	// Case 1: Fetch sees the stored snapshot
	entry, err := uut.Fetch(utCtxt, session)
	assert.Nil(err)
	assert.NotNil(entry)
	assert.Equal(json.RawMessage(`{"phase":"lobby"}`), entry.Data)

	// Case 2: a rejected action leaves no trace
	result, err = uut.Mutate(
		utCtxt, "cabo", session, Action{Name: "shuffle"}, StateSyncTransition,
	)
	assert.Nil(result)
	var rejected RejectedError
	assert.True(errors.As(err, &rejected))
	entry, err = uut.Fetch(utCtxt, session)
	assert.Nil(err)
	assert.Equal(json.RawMessage(`{"phase":"lobby"}`), entry.Data)
	select {
	case <-events:
		assert.False(true)
	case <-time.After(time.Millisecond * 100):
	}

	// Case 3: teardown deletes and broadcasts a terminal event
	assert.Nil(uut.Teardown(utCtxt, "cabo", session))
	entry, err = uut.Fetch(utCtxt, session)
	assert.Nil(err)
	assert.Nil(entry)
	select {
	case msg := <-events:
		assert.Equal("session_ended", msg.Name)
		assert.Equal(session, msg.Session)
		assert.Equal(uint64(2), msg.Sequence)
	case <-time.After(time.Second):
		assert.False(true)
	}
}

func TestCoordinatorSerializesContendingMutations(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	store, err := state.CreateInMemoryStore(8)
	assert.Nil(err)
	uut, err := DefineCoordinator(store, time.Second*5)
	assert.Nil(err)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(store.Close(utCtxt))
	}()

	session := uuid.New().String()

	events, err := store.Subscribe(utCtxt, "avalon")
	assert.Nil(err)

	// The first transition parks inside the critical section so the second
	// mutation must queue on the session lock
	firstEntered := make(chan bool, 1)
	firstProceed := make(chan bool, 1)
	slowFirst := func(
		ctxt context.Context, prev json.RawMessage, action Action,
	) (json.RawMessage, error) {
		firstEntered <- true
		<-firstProceed
		return StateSyncTransition(ctxt, prev, action)
	}

	firstDone := make(chan *MutationResult, 1)
	go func() {
		result, err := uut.Mutate(
			utCtxt, "avalon", session,
			Action{Name: "replace", Payload: json.RawMessage(`{"writer":"first"}`)},
			slowFirst,
		)
		assert.Nil(err)
		firstDone <- result
	}()
	<-firstEntered

	secondDone := make(chan *MutationResult, 1)
	go func() {
		result, err := uut.Mutate(
			utCtxt, "avalon", session,
			Action{Name: "replace", Payload: json.RawMessage(`{"writer":"second"}`)},
			StateSyncTransition,
		)
		assert.Nil(err)
		secondDone <- result
	}()

	// The second mutation must not complete while the first holds the lock
	select {
	case <-secondDone:
		assert.False(true)
	case <-time.After(time.Millisecond * 100):
	}
	firstProceed <- true

	first := <-firstDone
	second := <-secondDone
	assert.Equal(uint64(1), first.Sequence)
	assert.Equal(uint64(2), second.Sequence)

	// Final state reflects the second writer, and events arrive in order
	entry, err := uut.Fetch(utCtxt, session)
	assert.Nil(err)
	assert.Equal(json.RawMessage(`{"writer":"second"}`), entry.Data)
	msg := <-events
	assert.Equal(uint64(1), msg.Sequence)
	assert.Equal(json.RawMessage(`{"writer":"first"}`), msg.Payload)
	msg = <-events
	assert.Equal(uint64(2), msg.Sequence)
	assert.Equal(json.RawMessage(`{"writer":"second"}`), msg.Payload)
}

func TestCoordinatorLockTimeout(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	store, err := state.CreateInMemoryStore(8)
	assert.Nil(err)
	uut, err := DefineCoordinator(store, time.Millisecond*100)
	assert.Nil(err)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(store.Close(utCtxt))
	}()

	session := uuid.New().String()

	holderEntered := make(chan bool, 1)
	holderProceed := make(chan bool, 1)
	holder := func(
		ctxt context.Context, prev json.RawMessage, action Action,
	) (json.RawMessage, error) {
		holderEntered <- true
		<-holderProceed
		return StateSyncTransition(ctxt, prev, action)
	}

	holderDone := make(chan bool, 1)
	go func() {
		_, err := uut.Mutate(
			utCtxt, "cabo", session,
			Action{Name: "replace", Payload: json.RawMessage(`{}`)},
			holder,
		)
		assert.Nil(err)
		holderDone <- true
	}()
	<-holderEntered

	_, err = uut.Mutate(
		utCtxt, "cabo", session,
		Action{Name: "replace", Payload: json.RawMessage(`{}`)},
		StateSyncTransition,
	)
	assert.True(errors.Is(err, locks.ErrLockTimeout))

	holderProceed <- true
	<-holderDone
}

// runActionScript applies a fixed action sequence through a coordinator and
// captures the final document plus the observed event stream
func runActionScript(
	t *testing.T, store state.Store, channel string,
) (json.RawMessage, []state.Event) {
	assert := assert.New(t)

	uut, err := DefineCoordinator(store, time.Second*5)
	assert.Nil(err)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	session := uuid.New().String()

	subCtxt, subCtxtCancel := context.WithCancel(utCtxt)
	defer subCtxtCancel()
	events, err := store.Subscribe(subCtxt, channel)
	assert.Nil(err)

	script := []Action{
		{Name: "replace", Payload: json.RawMessage(`{"round":1,"pot":0}`)},
		{Name: "merge", Payload: json.RawMessage(`{"pot":25}`)},
		{Name: "deal"},
		{Name: "merge", Payload: json.RawMessage(`{"round":2}`)},
	}
	for _, action := range script {
		_, err := uut.Mutate(utCtxt, channel, session, action, StateSyncTransition)
		if action.Name == "deal" {
			var rejected RejectedError
			assert.True(errors.As(err, &rejected))
		} else {
			assert.Nil(err)
		}
	}

	var observed []state.Event
	for len(observed) < 3 {
		select {
		case msg := <-events:
			if msg.Session == session {
				observed = append(observed, msg)
			}
		case <-time.After(time.Second * 5):
			assert.False(true)
			return nil, nil
		}
	}

	entry, err := uut.Fetch(utCtxt, session)
	assert.Nil(err)
	assert.NotNil(entry)
	assert.Nil(uut.Teardown(utCtxt, channel, session))
	return entry.Data, observed
}

func TestBackendEquivalence(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	type scriptOutcome struct {
		backend string
		doc     map[string]interface{}
		names   []string
	}
	var outcomes []scriptOutcome

	record := func(backend string, store state.Store, channel string) {
		doc, observed := runActionScript(t, store, channel)
		parsed := map[string]interface{}{}
		assert.Nil(json.Unmarshal(doc, &parsed))
		names := []string{}
		var prevSeq uint64
		for _, msg := range observed {
			names = append(names, msg.Name)
			assert.Greater(msg.Sequence, prevSeq)
			prevSeq = msg.Sequence
		}
		outcomes = append(outcomes, scriptOutcome{backend: backend, doc: parsed, names: names})
		assert.Nil(store.Close(utCtxt))
	}

	memStore, err := state.CreateInMemoryStore(16)
	assert.Nil(err)
	record("memory", memStore, "lasvegas")

	if endpoint := common.GetUnitTestRedisAddr(); endpoint != "" {
		client, err := core.GetRedisClient(core.RedisConnectParams{
			Endpoint: endpoint, ConnectTimeout: time.Second * 5,
		})
		assert.Nil(err)
		store, err := state.CreateRedisStore(
			&client, fmt.Sprintf("ut-%s", uuid.New().String()), 16, time.Second*5,
		)
		assert.Nil(err)
		record("redis", store, "lasvegas")
	}
	if serverURI := common.GetUnitTestNatsURI(); serverURI != "" {
		client, err := core.GetNATSClient(core.NATSConnectParams{
			ServerURI:           serverURI,
			ConnectTimeout:      time.Second * 5,
			MaxReconnectAttempt: 2,
			ReconnectWait:       time.Second,
		})
		assert.Nil(err)
		store, err := state.CreateNATSStore(
			&client, fmt.Sprintf("ut-%s", uuid.New().String()), 16,
		)
		assert.Nil(err)
		record("nats", store, "lasvegas")
	}

	// Every backend must produce the identical final document and event order
	reference := outcomes[0]
	for _, outcome := range outcomes[1:] {
		assert.Equal(reference.doc, outcome.doc, outcome.backend)
		assert.Equal(reference.names, outcome.names, outcome.backend)
	}
}
