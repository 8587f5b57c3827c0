package common

import "github.com/spf13/viper"

// ===============================================================================
// State Store Related Config

// RedisConfig defines parameters for connecting to a Redis server
type RedisConfig struct {
	// Endpoint is the Redis "host:port" address. When set, the Redis backed
	// state store is selected.
	Endpoint string `mapstructure:"endpoint" json:"endpoint" validate:"omitempty,hostname_port"`
	// Password is the Redis AUTH password. Empty disables AUTH.
	Password string `mapstructure:"password" json:"-"`
	// Database is the Redis logical database index
	Database int `mapstructure:"database" json:"database" validate:"gte=0"`
	// OpTimeout is the max duration of one Redis operation in seconds
	OpTimeout int `mapstructure:"op_timeout_sec" json:"op_timeout_sec" validate:"gte=1"`
}

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI. When set (and no Redis endpoint
	// is set), the NATS backed state store is selected.
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"omitempty,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// StoreConfig defines the state store parameters. The backend is selected once
// at startup: Redis when an endpoint is configured, otherwise NATS when a
// server URI is configured, otherwise the in-process store.
type StoreConfig struct {
	// KeyPrefix namespaces all keys and event channels used on shared
	// backends, so multiple deployments can coexist on one server
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix" validate:"required"`
	// EventBufferLen is the per-subscription event buffer length
	EventBufferLen int `mapstructure:"event_buffer_len" json:"event_buffer_len" validate:"gte=1"`
	// Redis are the Redis backend connection parameters
	Redis RedisConfig `mapstructure:"redis" json:"redis" validate:"required,dive"`
	// NATS are the NATS backend connection parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required,dive"`
}

// ===============================================================================
// Session Mutation Related Config

// SessionConfig defines session mutation pipeline parameters
type SessionConfig struct {
	// LockAcquireTimeout is the max duration a mutation waits for a session
	// lock in seconds before reporting a lock timeout
	LockAcquireTimeout int `mapstructure:"lock_acquire_timeout_sec" json:"lock_acquire_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// Event Gateway Related Config

// GatewayConfig defines event gateway parameters
type GatewayConfig struct {
	// Channels is the fixed list of game channels served by this deployment
	Channels []string `mapstructure:"channels" json:"channels" validate:"required,min=1,dive,required"`
	// SendBufferLen is the per-connection outbound message buffer length
	SendBufferLen int `mapstructure:"send_buffer_len" json:"send_buffer_len" validate:"gte=1"`
	// WriteTimeout is the max duration of one websocket write in seconds
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=1"`
	// PingInterval is the websocket keepalive ping interval in seconds
	PingInterval int `mapstructure:"ping_interval_sec" json:"ping_interval_sec" validate:"gte=1"`
}

// ===============================================================================
// Game History Related Config

// HistoryConfig defines the finished-game archive parameters
type HistoryConfig struct {
	// DBFile is the SQLite database file holding finished-game results
	DBFile string `mapstructure:"db_file" json:"db_file" validate:"required"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// APIEndpointConfig defines API endpoint config
type APIEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// APIServerConfig defines configuration for the game API server
type APIServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the API server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the API server
	Endpoints APIEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config for the truth-state server
type SystemConfig struct {
	// Store are the state store config parameters
	Store StoreConfig `mapstructure:"store" json:"store" validate:"required,dive"`
	// Session are the session mutation pipeline config parameters
	Session SessionConfig `mapstructure:"session" json:"session" validate:"required,dive"`
	// Gateway are the event gateway config parameters
	Gateway GatewayConfig `mapstructure:"gateway" json:"gateway" validate:"required,dive"`
	// History are the finished-game archive config parameters
	History HistoryConfig `mapstructure:"history" json:"history" validate:"required,dive"`
	// API are the game API server configs
	API APIServerConfig `mapstructure:"api" json:"api" validate:"required,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default state store settings
	viper.SetDefault("store.key_prefix", "truthstate")
	viper.SetDefault("store.event_buffer_len", 64)
	viper.SetDefault("store.redis.database", 0)
	viper.SetDefault("store.redis.op_timeout_sec", 5)
	viper.SetDefault("store.nats.connect_timeout_sec", 30)
	viper.SetDefault("store.nats.reconnect.max_attempts", -1)
	viper.SetDefault("store.nats.reconnect.wait_interval_sec", 15)

	// Default session mutation settings
	viper.SetDefault("session.lock_acquire_timeout_sec", 5)

	// Default event gateway settings
	viper.SetDefault("gateway.channels", []string{
		"avalon", "cabo", "lasvegas", "loveletters", "flip7", "modernart",
	})
	viper.SetDefault("gateway.send_buffer_len", 64)
	viper.SetDefault("gateway.write_timeout_sec", 10)
	viper.SetDefault("gateway.ping_interval_sec", 45)

	// Default history settings
	viper.SetDefault("history.db_file", "games.db")

	// Default API server settings
	viper.SetDefault("api.endpoint_config.path_prefix", "/")
	viper.SetDefault("api.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("api.api_server.server_config.listen_port", 8000)
	viper.SetDefault("api.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("api.api_server.server_config.write_timeout_sec", 60)
	viper.SetDefault("api.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"api.api_server.logging_config.request_id_header", "Truthstate-Request-ID",
	)
	viper.SetDefault(
		"api.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
}
