package state

import (
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/core"
	"github.com/nats-io/nats.go"
)

// GetStateStore define the Store selected by config. A Redis endpoint takes
// priority, then a NATS server URI, otherwise the in-process store is used.
func GetStateStore(config common.StoreConfig) (Store, error) {
	logTags := log.Fields{"module": "state", "component": "store-factory"}

	if config.Redis.Endpoint != "" {
		opTimeout := time.Second * time.Duration(config.Redis.OpTimeout)
		client, err := core.GetRedisClient(core.RedisConnectParams{
			Endpoint:       config.Redis.Endpoint,
			Password:       config.Redis.Password,
			Database:       config.Redis.Database,
			ConnectTimeout: opTimeout,
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(logTags).Infof(
			"Using Redis backed state store at %s", config.Redis.Endpoint,
		)
		return CreateRedisStore(&client, config.KeyPrefix, config.EventBufferLen, opTimeout)
	}

	if config.NATS.ServerURI != "" {
		client, err := core.GetNATSClient(core.NATSConnectParams{
			ServerURI:           config.NATS.ServerURI,
			ConnectTimeout:      time.Second * time.Duration(config.NATS.ConnectTimeout),
			MaxReconnectAttempt: config.NATS.Reconnect.MaxAttempts,
			ReconnectWait:       time.Second * time.Duration(config.NATS.Reconnect.WaitInterval),
			OnDisconnectCallback: func(_ *nats.Conn, err error) {
				if err != nil {
					log.WithError(err).WithFields(logTags).Error("NATS connection lost")
				} else {
					log.WithFields(logTags).Error("NATS connection lost")
				}
			},
			OnReconnectCallback: func(nc *nats.Conn) {
				log.WithFields(logTags).Warnf("NATS reconnected with %s", nc.ConnectedUrl())
			},
			OnCloseCallback: func(_ *nats.Conn) {
				log.WithFields(logTags).Warn("NATS connection closed")
			},
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(logTags).Infof(
			"Using NATS backed state store at %s", config.NATS.ServerURI,
		)
		return CreateNATSStore(&client, config.KeyPrefix, config.EventBufferLen)
	}

	log.WithFields(logTags).Info("Using in-process state store")
	return CreateInMemoryStore(config.EventBufferLen)
}
