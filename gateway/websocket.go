package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/state"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsConnection adapts one websocket client into a gateway Connection.
// Events queue on a buffered channel drained by the write pump; a full
// queue fails the Send and the gateway drops the connection.
type wsConnection struct {
	common.Component
	id           string
	conn         *websocket.Conn
	send         chan state.Event
	closeOnce    sync.Once
	closed       chan bool
	writeTimeout time.Duration
	pingInterval time.Duration
}

func (c *wsConnection) ID() string {
	return c.id
}

func (c *wsConnection) Send(msg state.Event) error {
	// Checked on its own first. A combined select could still pick the
	// enqueue case after close and park the event in a queue no pump drains.
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s already closed", c.id)
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return fmt.Errorf("connection %s already closed", c.id)
	default:
		return fmt.Errorf("connection %s send queue full", c.id)
	}
}

func (c *wsConnection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// writePump drains the send queue onto the wire and keeps the peer alive
// with periodic pings
func (c *wsConnection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(&msg); err != nil {
				log.WithError(err).WithFields(c.LogTags).Error("Websocket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.WithError(err).WithFields(c.LogTags).Error("Websocket ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump discards inbound frames. Clients speak to the platform over the
// REST surface; the read loop exists to notice peer disconnects and answer
// control frames.
func (c *wsConnection) readPump() {
	defer c.Close()
	c.conn.SetPongHandler(func(string) error { return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseNormalClosure,
			) {
				log.WithError(err).WithFields(c.LogTags).Info("Websocket read failed")
			}
			return
		}
	}
}

// WebsocketAdapter upgrades live-stream HTTP requests and attaches the
// resulting connections to the event gateway
type WebsocketAdapter struct {
	common.Component
	gateway       Gateway
	upgrader      websocket.Upgrader
	sendBufferLen int
	writeTimeout  time.Duration
	pingInterval  time.Duration
}

// DefineWebsocketAdapter create a new WebsocketAdapter against gateway
func DefineWebsocketAdapter(
	gateway Gateway, config common.GatewayConfig,
) (*WebsocketAdapter, error) {
	logTags := log.Fields{
		"module": "gateway", "component": "websocket-adapter",
	}
	return &WebsocketAdapter{
		Component: common.Component{LogTags: logTags},
		gateway:   gateway,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBufferLen: config.SendBufferLen,
		writeTimeout:  time.Second * time.Duration(config.WriteTimeout),
		pingInterval:  time.Second * time.Duration(config.PingInterval),
	}, nil
}

// ServeWebsocket upgrade one request and serve it until either side closes
func (a *WebsocketAdapter) ServeWebsocket(
	w http.ResponseWriter, r *http.Request, channel string,
) error {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(a.LogTags).
			Errorf("Websocket upgrade on channel %s failed", channel)
		return err
	}
	connID := uuid.New().String()
	logTags := log.Fields{
		"module": "gateway", "component": "websocket-connection", "instance": connID,
	}
	reqParam := common.RequestParam{ID: connID, Method: r.Method, URI: r.URL.String()}
	reqParam.UpdateLogTags(logTags)
	wsConn := &wsConnection{
		Component:    common.Component{LogTags: logTags},
		id:           connID,
		conn:         conn,
		send:         make(chan state.Event, a.sendBufferLen),
		closed:       make(chan bool),
		writeTimeout: a.writeTimeout,
		pingInterval: a.pingInterval,
	}
	if err := a.gateway.Register(channel, wsConn); err != nil {
		log.WithError(err).WithFields(a.LogTags).
			Errorf("Unable to attach connection %s", connID)
		wsConn.Close()
		_ = conn.Close()
		return err
	}
	go wsConn.writePump()
	// Serve the read side on the request's goroutine so the HTTP handler
	// holds the connection open
	wsConn.readPump()
	a.gateway.Deregister(channel, connID)
	wsConn.Close()
	return nil
}
