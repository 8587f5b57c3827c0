package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/state"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestWebsocketLiveStream(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	store, err := state.CreateInMemoryStore(16)
	assert.Nil(err)

	wg := sync.WaitGroup{}
	defer wg.Wait()
	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()
	defer func() {
		assert.Nil(store.Close(context.Background()))
	}()

	gw, err := DefineGateway(utCtxt, store, []string{"modernart"})
	assert.Nil(err)
	assert.Nil(gw.Start(&wg))

	uut, err := DefineWebsocketAdapter(gw, common.GatewayConfig{
		Channels:      []string{"modernart"},
		SendBufferLen: 16,
		WriteTimeout:  5,
		PingInterval:  30,
	})
	assert.Nil(err)

	router := mux.NewRouter()
	router.HandleFunc(
		"/v1/game/{channel}/live", func(w http.ResponseWriter, r *http.Request) {
			_ = uut.ServeWebsocket(w, r, mux.Vars(r)["channel"])
		},
	).Methods("get")
	svr := httptest.NewServer(router)
	defer svr.Close()

	wsURL := fmt.Sprintf(
		"%s/v1/game/modernart/live", strings.Replace(svr.URL, "http://", "ws://", 1),
	)
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Nil(err)
	assert.Equal(http.StatusSwitchingProtocols, resp.StatusCode)
	defer func() {
		_ = client.Close()
	}()

	// Events published after attach reach the client as JSON frames
	session := uuid.New().String()
	for itr := 1; itr <= 3; itr++ {
		payload := json.RawMessage(fmt.Sprintf(`{"bid":%d}`, itr*100))
		_, err := store.Publish(utCtxt, "modernart", session, "state_update", payload)
		assert.Nil(err)
	}
	for itr := 1; itr <= 3; itr++ {
		assert.Nil(client.SetReadDeadline(time.Now().Add(time.Second * 5)))
		var msg state.Event
		assert.Nil(client.ReadJSON(&msg))
		assert.Equal("modernart", msg.Channel)
		assert.Equal(session, msg.Session)
		assert.Equal("state_update", msg.Name)
		assert.Equal(uint64(itr), msg.Sequence)
	}

	// Client disconnect detaches the connection from the gateway. Later
	// publishes must not error.
	assert.Nil(client.Close())
	time.Sleep(time.Millisecond * 100)
	_, err = store.Publish(utCtxt, "modernart", session, "state_update", nil)
	assert.Nil(err)
}

func TestWebsocketSendAfterClose(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	uut := &wsConnection{
		id:     uuid.New().String(),
		send:   make(chan state.Event, 4),
		closed: make(chan bool),
	}

	// Case 0: enqueue works while the connection is open
	assert.Nil(uut.Send(state.Event{Sequence: 1}))

	// Case 1: after close every send fails even with buffer space free
	uut.Close()
	for itr := 0; itr < 4; itr++ {
		assert.NotNil(uut.Send(state.Event{Sequence: uint64(itr + 2)}))
	}
	assert.Len(uut.send, 1)

	// Case 2: close is idempotent
	uut.Close()
}
