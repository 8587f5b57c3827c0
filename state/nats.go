package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/core"
	"github.com/nats-io/nats.go"
)

// natsStore implements Store against NATS JetStream. Snapshots live in the
// KV bucket "{prefix}-state" keyed by session ID, and each game channel maps
// to its own stream on subject "{prefix}.game.{channel}". The stream sequence
// JetStream assigns on publish acknowledgement doubles as the event sequence
// number.
type natsStore struct {
	common.Component
	client     *core.NatsClient
	prefix     string
	bufferLen  int
	kv         nats.KeyValue
	lclMutex   sync.Mutex
	streams    map[string]bool
	rootCtxt   context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// CreateNATSStore define a JetStream backed Store
func CreateNATSStore(
	client *core.NatsClient, prefix string, eventBufferLen int,
) (Store, error) {
	logTags := log.Fields{
		"module": "state", "component": "nats-store", "prefix": prefix,
	}
	bucket := natsBucket(prefix)
	kv, err := client.JetStream().KeyValue(bucket)
	if err != nil {
		if !errors.Is(err, nats.ErrBucketNotFound) {
			return nil, fmt.Errorf("checking KV bucket %s failed: %s: %w", bucket, err, ErrBackendUnavailable)
		}
		kv, err = client.JetStream().CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("creating KV bucket %s failed: %s: %w", bucket, err, ErrBackendUnavailable)
		}
		log.WithFields(logTags).Infof("Created KV bucket %s", bucket)
	}
	rootCtxt, rootCancel := context.WithCancel(context.Background())
	return &natsStore{
		Component:  common.Component{LogTags: logTags},
		client:     client,
		prefix:     prefix,
		bufferLen:  eventBufferLen,
		kv:         kv,
		streams:    make(map[string]bool),
		rootCtxt:   rootCtxt,
		rootCancel: rootCancel,
	}, nil
}

func (s *natsStore) Get(ctxt context.Context, session string) (*Snapshot, error) {
	raw, err := s.kv.Get(session)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, nil
		}
		return nil, fmt.Errorf("KV read for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	var entry Snapshot
	if err := json.Unmarshal(raw.Value(), &entry); err != nil {
		return nil, fmt.Errorf("stored snapshot for %s not parsable: %w", session, err)
	}
	return &entry, nil
}

func (s *natsStore) Set(ctxt context.Context, session string, data json.RawMessage) error {
	entry := Snapshot{Session: session, Data: data, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(session, raw); err != nil {
		return fmt.Errorf("KV write for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	return nil
}

func (s *natsStore) Delete(ctxt context.Context, session string) error {
	if err := s.kv.Delete(session); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("KV delete for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	return nil
}

// ensureStream defines the per channel stream on first use
func (s *natsStore) ensureStream(channel string) error {
	s.lclMutex.Lock()
	defer s.lclMutex.Unlock()
	if s.streams[channel] {
		return nil
	}
	name := natsStream(s.prefix, channel)
	if _, err := s.client.JetStream().StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("checking stream %s failed: %s: %w", name, err, ErrBackendUnavailable)
		}
		if _, err := s.client.JetStream().AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{natsSubject(s.prefix, channel)},
		}); err != nil {
			return fmt.Errorf("creating stream %s failed: %s: %w", name, err, ErrBackendUnavailable)
		}
		log.WithFields(s.LogTags).Infof("Created stream %s", name)
	}
	s.streams[channel] = true
	return nil
}

func (s *natsStore) Publish(
	ctxt context.Context, channel, session, event string, payload json.RawMessage,
) (uint64, error) {
	if err := s.ensureStream(channel); err != nil {
		return 0, err
	}
	// Sequence is filled subscriber side from the stream metadata, so the
	// wire body leaves it zero.
	msg := Event{Channel: channel, Session: session, Name: event, Payload: payload}
	raw, err := json.Marshal(&msg)
	if err != nil {
		return 0, err
	}
	ack, err := s.client.JetStream().Publish(
		natsSubject(s.prefix, channel), raw, nats.Context(ctxt),
	)
	if err != nil {
		return 0, fmt.Errorf(
			"publish on channel %s failed: %s: %w", channel, err, ErrBackendUnavailable,
		)
	}
	return ack.Sequence, nil
}

func (s *natsStore) Subscribe(ctxt context.Context, channel string) (<-chan Event, error) {
	if err := s.ensureStream(channel); err != nil {
		return nil, err
	}
	// The library delivers into incoming; only the forwarding goroutine
	// below touches forward, so nothing can race its close.
	incoming := make(chan *nats.Msg, s.bufferLen)
	sub, err := s.client.JetStream().ChanSubscribe(
		natsSubject(s.prefix, channel), incoming, nats.DeliverNew(),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"subscribe on channel %s failed: %s: %w", channel, err, ErrBackendUnavailable,
		)
	}
	forward := make(chan Event, s.bufferLen)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(forward)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				log.WithError(err).WithFields(s.LogTags).
					Errorf("Unsubscribe on channel %s failed", channel)
			}
		}()
		for {
			select {
			case <-ctxt.Done():
				return
			case <-s.rootCtxt.Done():
				return
			case raw, ok := <-incoming:
				if !ok {
					return
				}
				var msg Event
				if err := json.Unmarshal(raw.Data, &msg); err != nil {
					log.WithError(err).WithFields(s.LogTags).
						Errorf("Discarding unparsable event on channel %s", channel)
					continue
				}
				if meta, err := raw.Metadata(); err == nil {
					msg.Sequence = meta.Sequence.Stream
				}
				select {
				case forward <- msg:
				case <-ctxt.Done():
					return
				case <-s.rootCtxt.Done():
					return
				}
			}
		}
	}()
	return forward, nil
}

func (s *natsStore) Ready(ctxt context.Context) error {
	if !s.client.NATs().IsConnected() {
		return fmt.Errorf("NATS connection not active: %w", ErrBackendUnavailable)
	}
	return nil
}

func (s *natsStore) Close(ctxt context.Context) error {
	s.rootCancel()
	s.wg.Wait()
	s.client.Close(ctxt)
	return nil
}
