package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig 进程级配置，全部来自环境变量（前缀 CHAT_）
type AppConfig struct {
	GatewayID  string `envconfig:"GATEWAY_ID" default:""`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	// 总线后端：redis | nats | memory
	BusBackend string `envconfig:"BUS_BACKEND" default:"redis"`

	Redis RedisConfig `envconfig:"REDIS"`
	Nats  NatsConfig  `envconfig:"NATS"`
	Mongo MongoConfig `envconfig:"MONGO"`

	// Publisher 重试额度与退避间隔
	PublishAttempts int           `envconfig:"PUBLISH_ATTEMPTS" default:"3"`
	PublishBackoff  time.Duration `envconfig:"PUBLISH_BACKOFF" default:"1s"`

	// Subscriber Loop 断线重连等待
	SubscribeRetryDelay time.Duration `envconfig:"SUBSCRIBE_RETRY_DELAY" default:"5s"`

	// typing 状态过期时间（客户端没发 isTyping=false 时兜底清理）
	TypingTTL time.Duration `envconfig:"TYPING_TTL" default:"10s"`

	// 在线 presence key 的 TTL
	PresenceTTL time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`

	SendQueueSize  int `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	FanoutWorkers  int `envconfig:"FANOUT_WORKERS" default:"4"`
	FanoutQueueLen int `envconfig:"FANOUT_QUEUE" default:"1024"`
}

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"PASSWORD" default:""`
	DB       int    `envconfig:"DB" default:"0"`
	PoolSize int    `envconfig:"POOL_SIZE" default:"16"`
}

type NatsConfig struct {
	Servers []string `envconfig:"SERVERS" default:"nats://127.0.0.1:4222"`
	Name    string   `envconfig:"NAME" default:"chat-relay"`
}

type MongoConfig struct {
	URI      string        `envconfig:"URI" default:"mongodb://127.0.0.1:27017"`
	Database string        `envconfig:"DATABASE" default:"Chatapp"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Load 读取并校验配置
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("CHAT", &c); err != nil {
		return nil, err
	}
	if c.PublishAttempts <= 0 {
		c.PublishAttempts = 3
	}
	if c.SubscribeRetryDelay <= 0 {
		c.SubscribeRetryDelay = 5 * time.Second
	}
	return &c, nil
}
