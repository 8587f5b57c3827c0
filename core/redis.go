package core

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/common"
	"github.com/redis/go-redis/v9"
)

// RedisConnectParams Redis connection parameter
type RedisConnectParams struct {
	// Endpoint connect to Redis server at "host:port"
	Endpoint string `validate:"required,hostname_port"`
	// Password AUTH password, empty disables AUTH
	Password string
	// Database logical database index
	Database int `validate:"gte=0"`
	// ConnectTimeout max time to wait for the initial connection check
	ConnectTimeout time.Duration
}

// RedisClient Redis client used by the Redis backed state store
type RedisClient struct {
	common.Component
	client *redis.Client
}

// Client fetch the underlying Redis client
func (c RedisClient) Client() *redis.Client {
	return c.client
}

// Close close a Redis client
func (c RedisClient) Close(ctxt context.Context) {
	if err := c.client.Close(); err != nil {
		log.WithError(err).WithFields(c.LogTags).Error("Redis client close failed")
	}
	log.WithFields(c.LogTags).Infof("Close Redis client")
}

// GetRedisClient define a new Redis client
func GetRedisClient(param RedisConnectParams) (RedisClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "redis-backend",
		"instance":  param.Endpoint,
	}
	client := redis.NewClient(&redis.Options{
		Addr:     param.Endpoint,
		Password: param.Password,
		DB:       param.Database,
	})
	// Verify the server is reachable before handing the client out
	ctxt, cancel := context.WithTimeout(context.Background(), param.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctxt).Err(); err != nil {
		log.WithError(err).WithFields(logTags).Errorf(
			"Unable to connect with Redis server %s", param.Endpoint,
		)
		return RedisClient{}, err
	}
	log.WithFields(logTags).Infof("Connected with Redis server %s", param.Endpoint)
	return RedisClient{
		Component: common.Component{LogTags: logTags},
		client:    client,
	}, nil
}
