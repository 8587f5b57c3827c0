package state

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func defineTestRedisStore(t *testing.T, prefix string) Store {
	endpoint := common.GetUnitTestRedisAddr()
	if endpoint == "" {
		t.Skip("Skipping Redis backed tests. Set UNITTEST_REDIS_ADDR to enable.")
	}
	client, err := core.GetRedisClient(core.RedisConnectParams{
		Endpoint: endpoint, ConnectTimeout: time.Second * 5,
	})
	assert.Nil(t, err)
	uut, err := CreateRedisStore(&client, prefix, 16, time.Second*5)
	assert.Nil(t, err)
	return uut
}

func TestRedisSnapshotCRUD(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := defineTestRedisStore(t, fmt.Sprintf("ut-%s", uuid.New().String()))

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(uut.Close(utCtxt))
	}()

	assert.Nil(uut.Ready(utCtxt))

	session := uuid.New().String()

	entry, err := uut.Get(utCtxt, session)
	assert.Nil(err)
	assert.Nil(entry)

	doc := json.RawMessage(`{"phase":"lobby"}`)
	assert.Nil(uut.Set(utCtxt, session, doc))
	entry, err = uut.Get(utCtxt, session)
	assert.Nil(err)
	assert.NotNil(entry)
	assert.Equal(session, entry.Session)
	assert.Equal(doc, entry.Data)

	assert.Nil(uut.Delete(utCtxt, session))
	entry, err = uut.Get(utCtxt, session)
	assert.Nil(err)
	assert.Nil(entry)
	assert.Nil(uut.Delete(utCtxt, session))
}

func TestRedisPubSub(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := defineTestRedisStore(t, fmt.Sprintf("ut-%s", uuid.New().String()))

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(uut.Close(utCtxt))
	}()

	session := uuid.New().String()

	events, err := uut.Subscribe(utCtxt, "cabo")
	assert.Nil(err)

	// Sequences start at one and carry through the wire envelope
	for itr := 1; itr <= 3; itr++ {
		payload := json.RawMessage(fmt.Sprintf(`{"turn":%d}`, itr))
		seq, err := uut.Publish(utCtxt, "cabo", session, "state_update", payload)
		assert.Nil(err)
		assert.Equal(uint64(itr), seq)
		select {
		case msg := <-events:
			assert.Equal("cabo", msg.Channel)
			assert.Equal(session, msg.Session)
			assert.Equal("state_update", msg.Name)
			assert.Equal(payload, msg.Payload)
			assert.Equal(uint64(itr), msg.Sequence)
		case <-time.After(time.Second * 5):
			assert.False(true)
		}
	}
}

func TestRedisLateSubscriberSkipsEarlierEvents(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := defineTestRedisStore(t, fmt.Sprintf("ut-%s", uuid.New().String()))

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(uut.Close(utCtxt))
	}()

	session := uuid.New().String()

	// Publish before anyone is listening
	var lastSeq uint64
	for itr := 1; itr <= 3; itr++ {
		seq, err := uut.Publish(utCtxt, "modernart", session, "state_update", nil)
		assert.Nil(err)
		lastSeq = seq
	}

	events, err := uut.Subscribe(utCtxt, "modernart")
	assert.Nil(err)

	// Only events published after the subscribe are delivered
	seq, err := uut.Publish(utCtxt, "modernart", session, "state_update", nil)
	assert.Nil(err)
	assert.Equal(lastSeq+1, seq)
	select {
	case msg := <-events:
		assert.Equal(seq, msg.Sequence)
	case <-time.After(time.Second * 5):
		assert.False(true)
	}
	select {
	case msg := <-events:
		assert.Falsef(true, "unexpected replayed event %d", msg.Sequence)
	case <-time.After(time.Millisecond * 100):
	}
}
