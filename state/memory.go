package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
)

// memoryStore implements Store against process local maps. Intended for
// single node deployments and tests.
type memoryStore struct {
	common.Component
	lclMutex    sync.RWMutex
	snapshots   map[string]Snapshot
	sequences   map[string]uint64
	subscribers map[string]map[uint64]chan Event
	nextSubID   uint64
	bufferLen   int
	closed      bool
}

// CreateInMemoryStore define a process local Store
func CreateInMemoryStore(eventBufferLen int) (Store, error) {
	logTags := log.Fields{
		"module": "state", "component": "memory-store",
	}
	return &memoryStore{
		Component:   common.Component{LogTags: logTags},
		snapshots:   make(map[string]Snapshot),
		sequences:   make(map[string]uint64),
		subscribers: make(map[string]map[uint64]chan Event),
		bufferLen:   eventBufferLen,
	}, nil
}

func (s *memoryStore) Get(ctxt context.Context, session string) (*Snapshot, error) {
	s.lclMutex.RLock()
	defer s.lclMutex.RUnlock()
	entry, ok := s.snapshots[session]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *memoryStore) Set(ctxt context.Context, session string, data json.RawMessage) error {
	s.lclMutex.Lock()
	defer s.lclMutex.Unlock()
	stored := make(json.RawMessage, len(data))
	copy(stored, data)
	s.snapshots[session] = Snapshot{
		Session: session, Data: stored, UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *memoryStore) Delete(ctxt context.Context, session string) error {
	s.lclMutex.Lock()
	defer s.lclMutex.Unlock()
	delete(s.snapshots, session)
	return nil
}

func (s *memoryStore) Publish(
	ctxt context.Context, channel, session, event string, payload json.RawMessage,
) (uint64, error) {
	s.lclMutex.Lock()
	defer s.lclMutex.Unlock()
	s.sequences[channel]++
	msg := Event{
		Channel:  channel,
		Session:  session,
		Name:     event,
		Payload:  payload,
		Sequence: s.sequences[channel],
	}
	for subID, subChan := range s.subscribers[channel] {
		select {
		case subChan <- msg:
		default:
			log.WithFields(s.LogTags).
				Warnf("Subscriber %d on channel %s lagging. Dropped event", subID, channel)
		}
	}
	return msg.Sequence, nil
}

func (s *memoryStore) Subscribe(ctxt context.Context, channel string) (<-chan Event, error) {
	s.lclMutex.Lock()
	subID := s.nextSubID
	s.nextSubID++
	subChan := make(chan Event, s.bufferLen)
	if _, ok := s.subscribers[channel]; !ok {
		s.subscribers[channel] = make(map[uint64]chan Event)
	}
	s.subscribers[channel][subID] = subChan
	s.lclMutex.Unlock()

	go func() {
		<-ctxt.Done()
		s.lclMutex.Lock()
		defer s.lclMutex.Unlock()
		if _, ok := s.subscribers[channel][subID]; ok {
			delete(s.subscribers[channel], subID)
			close(subChan)
		}
	}()

	return subChan, nil
}

func (s *memoryStore) Ready(ctxt context.Context) error {
	return nil
}

func (s *memoryStore) Close(ctxt context.Context) error {
	s.lclMutex.Lock()
	defer s.lclMutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for channel, subs := range s.subscribers {
		for subID, subChan := range subs {
			delete(subs, subID)
			close(subChan)
		}
		delete(s.subscribers, channel)
	}
	log.WithFields(s.LogTags).Info("Closed in-memory store")
	return nil
}
