package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/state"
)

// Connection is one attached event subscriber. Send must not block; a
// connection that cannot accept an event returns an error and is dropped
// from the gateway.
type Connection interface {
	// ID uniquely identifies the connection
	ID() string
	// Send queues one event for delivery
	Send(msg state.Event) error
	// Close shuts the connection down
	Close()
}

// Gateway fans events published on the game channels out to attached
// connections. Delivery is best effort; a failing connection never blocks
// the channel's forward loop or its peers.
type Gateway interface {
	// Start subscribes to every configured channel and runs one forward
	// loop per channel until the root context ends
	Start(wg *sync.WaitGroup) error
	// Register attaches a connection to a channel
	Register(channel string, conn Connection) error
	// Deregister detaches a connection from a channel
	Deregister(channel string, connID string)
}

// gatewayImpl implements Gateway
type gatewayImpl struct {
	common.Component
	store    state.Store
	rootCtxt context.Context
	lclMutex sync.RWMutex
	conns    map[string]map[string]Connection
}

// DefineGateway create a new event Gateway serving the listed channels
func DefineGateway(
	rootCtxt context.Context, store state.Store, channels []string,
) (Gateway, error) {
	logTags := log.Fields{
		"module": "gateway", "component": "event-gateway",
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("gateway requires at least one channel")
	}
	conns := make(map[string]map[string]Connection)
	for _, channel := range channels {
		conns[channel] = make(map[string]Connection)
	}
	return &gatewayImpl{
		Component: common.Component{LogTags: logTags},
		store:     store,
		rootCtxt:  rootCtxt,
		conns:     conns,
	}, nil
}

func (g *gatewayImpl) Start(wg *sync.WaitGroup) error {
	for channel := range g.conns {
		events, err := g.store.Subscribe(g.rootCtxt, channel)
		if err != nil {
			log.WithError(err).WithFields(g.LogTags).
				Errorf("Unable to subscribe to channel %s", channel)
			return err
		}
		wg.Add(1)
		go func(channel string, events <-chan state.Event) {
			defer wg.Done()
			g.forwardLoop(channel, events)
		}(channel, events)
	}
	log.WithFields(g.LogTags).Infof("Forwarding %d channels", len(g.conns))
	return nil
}

// forwardLoop pushes one channel's events to its attached connections
func (g *gatewayImpl) forwardLoop(channel string, events <-chan state.Event) {
	for {
		select {
		case <-g.rootCtxt.Done():
			return
		case msg, ok := <-events:
			if !ok {
				log.WithFields(g.LogTags).
					Infof("Event source for channel %s closed", channel)
				return
			}
			g.deliver(channel, msg)
		}
	}
}

func (g *gatewayImpl) deliver(channel string, msg state.Event) {
	g.lclMutex.RLock()
	targets := make([]Connection, 0, len(g.conns[channel]))
	for _, conn := range g.conns[channel] {
		targets = append(targets, conn)
	}
	g.lclMutex.RUnlock()
	for _, conn := range targets {
		if err := conn.Send(msg); err != nil {
			log.WithError(err).WithFields(g.LogTags).Errorf(
				"Dropping connection %s on channel %s", conn.ID(), channel,
			)
			g.Deregister(channel, conn.ID())
			conn.Close()
		}
	}
}

func (g *gatewayImpl) Register(channel string, conn Connection) error {
	g.lclMutex.Lock()
	defer g.lclMutex.Unlock()
	registry, ok := g.conns[channel]
	if !ok {
		return fmt.Errorf("channel %s is not served by this gateway", channel)
	}
	registry[conn.ID()] = conn
	log.WithFields(g.LogTags).Infof(
		"Connection %s joined channel %s", conn.ID(), channel,
	)
	return nil
}

func (g *gatewayImpl) Deregister(channel string, connID string) {
	g.lclMutex.Lock()
	defer g.lclMutex.Unlock()
	if registry, ok := g.conns[channel]; ok {
		if _, present := registry[connID]; present {
			delete(registry, connID)
			log.WithFields(g.LogTags).Infof(
				"Connection %s left channel %s", connID, channel,
			)
		}
	}
}
