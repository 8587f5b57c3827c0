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
	"github.com/redis/go-redis/v9"
)

// redisStore implements Store against a shared Redis deployment. Snapshots
// live under "{prefix}:state:{session}", channel sequence counters under
// "{prefix}:seq:{channel}", and events fan out over Redis pub/sub on
// "{prefix}:game:{channel}".
type redisStore struct {
	common.Component
	client     *core.RedisClient
	prefix     string
	bufferLen  int
	opTimeout  time.Duration
	rootCtxt   context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// CreateRedisStore define a Redis backed Store
func CreateRedisStore(
	client *core.RedisClient, prefix string, eventBufferLen int, opTimeout time.Duration,
) (Store, error) {
	logTags := log.Fields{
		"module": "state", "component": "redis-store", "prefix": prefix,
	}
	rootCtxt, rootCancel := context.WithCancel(context.Background())
	return &redisStore{
		Component:  common.Component{LogTags: logTags},
		client:     client,
		prefix:     prefix,
		bufferLen:  eventBufferLen,
		opTimeout:  opTimeout,
		rootCtxt:   rootCtxt,
		rootCancel: rootCancel,
	}, nil
}

// opContext bound one backend operation by the configured timeout
func (s *redisStore) opContext(ctxt context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(ctxt, s.opTimeout)
	}
	return context.WithCancel(ctxt)
}

func (s *redisStore) Get(ctxt context.Context, session string) (*Snapshot, error) {
	callCtxt, cancel := s.opContext(ctxt)
	defer cancel()
	raw, err := s.client.Client().Get(callCtxt, stateKey(s.prefix, session)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	var entry Snapshot
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("stored snapshot for %s not parsable: %w", session, err)
	}
	return &entry, nil
}

func (s *redisStore) Set(ctxt context.Context, session string, data json.RawMessage) error {
	entry := Snapshot{Session: session, Data: data, UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	callCtxt, cancel := s.opContext(ctxt)
	defer cancel()
	if err := s.client.Client().Set(
		callCtxt, stateKey(s.prefix, session), raw, 0,
	).Err(); err != nil {
		return fmt.Errorf("redis SET for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	return nil
}

func (s *redisStore) Delete(ctxt context.Context, session string) error {
	callCtxt, cancel := s.opContext(ctxt)
	defer cancel()
	if err := s.client.Client().Del(callCtxt, stateKey(s.prefix, session)).Err(); err != nil {
		return fmt.Errorf("redis DEL for %s failed: %s: %w", session, err, ErrBackendUnavailable)
	}
	return nil
}

func (s *redisStore) Publish(
	ctxt context.Context, channel, session, event string, payload json.RawMessage,
) (uint64, error) {
	callCtxt, cancel := s.opContext(ctxt)
	defer cancel()
	// The sequence counter is claimed before transmit, so every published
	// event carries its number in the body and subscribers on other nodes
	// order by it.
	seq, err := s.client.Client().Incr(callCtxt, seqKey(s.prefix, channel)).Result()
	if err != nil {
		return 0, fmt.Errorf(
			"redis INCR on channel %s failed: %s: %w", channel, err, ErrBackendUnavailable,
		)
	}
	msg := Event{
		Channel:  channel,
		Session:  session,
		Name:     event,
		Payload:  payload,
		Sequence: uint64(seq),
	}
	raw, err := json.Marshal(&msg)
	if err != nil {
		return 0, err
	}
	if err := s.client.Client().Publish(
		callCtxt, pubsubChannel(s.prefix, channel), raw,
	).Err(); err != nil {
		return 0, fmt.Errorf(
			"redis PUBLISH on channel %s failed: %s: %w", channel, err, ErrBackendUnavailable,
		)
	}
	return uint64(seq), nil
}

func (s *redisStore) Subscribe(ctxt context.Context, channel string) (<-chan Event, error) {
	pubsub := s.client.Client().Subscribe(ctxt, pubsubChannel(s.prefix, channel))
	// Force the subscription to be established before returning
	if _, err := pubsub.Receive(ctxt); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf(
			"redis SUBSCRIBE on channel %s failed: %s: %w", channel, err, ErrBackendUnavailable,
		)
	}
	forward := make(chan Event, s.bufferLen)
	incoming := pubsub.Channel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(forward)
		defer func() {
			_ = pubsub.Close()
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
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					log.WithError(err).WithFields(s.LogTags).
						Errorf("Discarding unparsable event on channel %s", channel)
					continue
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

func (s *redisStore) Ready(ctxt context.Context) error {
	callCtxt, cancel := s.opContext(ctxt)
	defer cancel()
	if err := s.client.Client().Ping(callCtxt).Err(); err != nil {
		return fmt.Errorf("redis PING failed: %s: %w", err, ErrBackendUnavailable)
	}
	return nil
}

func (s *redisStore) Close(ctxt context.Context) error {
	s.rootCancel()
	s.wg.Wait()
	s.client.Close(ctxt)
	return nil
}
