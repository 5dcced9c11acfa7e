package config

import "time"

// Transport kinds for the push channel
const (
	TransportSSE       = "sse"
	TransportWebsocket = "websocket"
)

// Broker kinds for the dev server
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Client definition messenger_client YAML structure
type Client struct {
	ServerURL string `mapstructure:"server_url" validate:"required,url"`
	Token     string `mapstructure:"token"`
	UserID    string `mapstructure:"user_id"`

	Transport      string        `mapstructure:"transport" validate:"oneof=sse websocket"`
	OpenTimeout    time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	HistoryLimit   int           `mapstructure:"history_limit" validate:"min=1,max=200"`

	Debug bool `mapstructure:"debug"`
}

// DevServer definition dev_server YAML structure
type DevServer struct {
	Port      string `mapstructure:"port" validate:"required"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	Issuer    string `mapstructure:"issuer"`

	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"gt=0"`
	QueueSize         int           `mapstructure:"queue_size" validate:"min=1"`
	HistoryMaxLimit   int           `mapstructure:"history_max_limit" validate:"min=1"`

	Broker string      `mapstructure:"broker" validate:"oneof=memory redis"`
	Redis  RedisConfig `mapstructure:"redis"`

	Debug bool `mapstructure:"debug"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr          string   `mapstructure:"addr"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	RedisDB       int      `mapstructure:"redis_db"`
}

// ClientDefaults default values for Client
var ClientDefaults = map[string]interface{}{
	"server_url":      "http://localhost:8090",
	"token":           "",
	"user_id":         "",
	"transport":       TransportSSE,
	"open_timeout":    10 * time.Second,
	"reconnect_delay": 5 * time.Second,
	"poll_interval":   3 * time.Second,
	"request_timeout": 15 * time.Second,
	"history_limit":   50,
	"debug":           false,
}

// DevServerDefaults default values for DevServer
var DevServerDefaults = map[string]interface{}{
	"port":                 "8090",
	"jwt_secret":           "dev_secret_key",
	"issuer":               "dev_server",
	"keepalive_interval":   20 * time.Second,
	"queue_size":           100,
	"history_max_limit":    200,
	"broker":               BrokerMemory,
	"redis.addr":           "",
	"redis.master_name":    "",
	"redis.sentinel_addrs": []string{},
	"redis.redis_db":       0,
	"debug":                false,
}
