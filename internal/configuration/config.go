package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Duration reads Go duration strings ("5s", "15m") from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(b, &ns); err != nil {
			return fmt.Errorf("duration must be a string like \"5s\": %s", b)
		}
		d.Duration = time.Duration(ns)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type StoreConfig struct {
	Driver           string   `json:"driver"` // "mongo" or "memory"
	OperationTimeout Duration `json:"operation_timeout"`
}

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	ConversationsCollection string `json:"conversations_collection"`
}

type PresenceConfig struct {
	HeartbeatInterval  Duration `json:"heartbeat_interval"`
	PongWait           Duration `json:"pong_wait"`
	JanitorInterval    Duration `json:"janitor_interval"`
	StaleAfter         Duration `json:"stale_after"`
	JanitorConcurrency int      `json:"janitor_concurrency"`
}

type HubConfig struct {
	SendBuffer     int      `json:"send_buffer"`
	SendTimeout    Duration `json:"send_timeout"`
	Workers        int      `json:"workers"`
	MaxMessageSize int64    `json:"max_message_size"`
}

type AuthConfig struct {
	JWTSecret  string `json:"jwt_secret"` // empty disables session checks
	CookieName string `json:"cookie_name"`
}

type RedisConfig struct {
	Addr              string `json:"addr"` // empty disables rate limiting
	Password          string `json:"password"`
	DB                int    `json:"db"`
	MessagesPerMinute int    `json:"messages_per_minute"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

type Config struct {
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	Mongo    MongoConfig    `json:"mongo"`
	Presence PresenceConfig `json:"presence"`
	Hub      HubConfig      `json:"hub"`
	Auth     AuthConfig     `json:"auth"`
	Redis    RedisConfig    `json:"redis"`
	Log      LogConfig      `json:"log"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			AppPort:     8080,
			SocketPort:  8081,
			SocketRoute: "ws",
		},
		Store: StoreConfig{
			Driver:           "mongo",
			OperationTimeout: Duration{5 * time.Second},
		},
		Mongo: MongoConfig{
			Uri:                     "mongodb://localhost:27017",
			Database:                "chat",
			ConversationsCollection: "conversations",
		},
		Presence: PresenceConfig{
			HeartbeatInterval:  Duration{5 * time.Second},
			PongWait:           Duration{10 * time.Second},
			JanitorInterval:    Duration{15 * time.Minute},
			StaleAfter:         Duration{30 * time.Minute},
			JanitorConcurrency: 8,
		},
		Hub: HubConfig{
			SendBuffer:     256,
			SendTimeout:    Duration{2 * time.Second},
			Workers:        16,
			MaxMessageSize: 64 * 1024,
		},
		Auth: AuthConfig{
			CookieName: "session",
		},
		Redis: RedisConfig{
			MessagesPerMinute: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the JSON file at configPath over the defaults, then applies
// .env and environment overrides. An empty path skips the file.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func applyEnv(c *Config) {
	c.Server.AppPort = getEnvAsInt("CHAT_APP_PORT", c.Server.AppPort)
	c.Server.SocketPort = getEnvAsInt("CHAT_SOCKET_PORT", c.Server.SocketPort)
	c.Server.SocketRoute = getEnv("CHAT_SOCKET_ROUTE", c.Server.SocketRoute)
	if origins := getEnv("CHAT_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Store.Driver = getEnv("CHAT_STORE_DRIVER", c.Store.Driver)
	c.Store.OperationTimeout.Duration = getEnvAsDuration("CHAT_STORE_TIMEOUT", c.Store.OperationTimeout.Duration)

	c.Mongo.Uri = getEnv("MONGO_URI", c.Mongo.Uri)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)

	c.Presence.HeartbeatInterval.Duration = getEnvAsDuration("CHAT_HEARTBEAT_INTERVAL", c.Presence.HeartbeatInterval.Duration)
	c.Presence.PongWait.Duration = getEnvAsDuration("CHAT_PONG_WAIT", c.Presence.PongWait.Duration)
	c.Presence.JanitorInterval.Duration = getEnvAsDuration("CHAT_JANITOR_INTERVAL", c.Presence.JanitorInterval.Duration)
	c.Presence.StaleAfter.Duration = getEnvAsDuration("CHAT_STALE_AFTER", c.Presence.StaleAfter.Duration)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.MessagesPerMinute = getEnvAsInt("CHAT_MESSAGES_PER_MINUTE", c.Redis.MessagesPerMinute)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if v, err := strconv.ParseBool(getEnv("LOG_DEVELOPMENT", "")); err == nil {
		c.Log.Development = v
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.AppPort <= 0 || c.Server.SocketPort <= 0 {
		errs = append(errs, errors.New("server ports must be positive"))
	}
	if strings.Trim(c.Server.SocketRoute, "/") == "" {
		errs = append(errs, errors.New("server.socket_route must be set"))
	}

	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.Uri == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	positive := map[string]time.Duration{
		"store.operation_timeout":     c.Store.OperationTimeout.Duration,
		"presence.heartbeat_interval": c.Presence.HeartbeatInterval.Duration,
		"presence.pong_wait":          c.Presence.PongWait.Duration,
		"presence.janitor_interval":   c.Presence.JanitorInterval.Duration,
		"presence.stale_after":        c.Presence.StaleAfter.Duration,
		"hub.send_timeout":            c.Hub.SendTimeout.Duration,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Presence.PongWait.Duration <= c.Presence.HeartbeatInterval.Duration {
		errs = append(errs, errors.New("presence.pong_wait must exceed presence.heartbeat_interval"))
	}
	if c.Hub.SendBuffer <= 0 || c.Hub.Workers <= 0 || c.Hub.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("hub sizes must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.MessagesPerMinute <= 0 {
		errs = append(errs, errors.New("redis.messages_per_minute must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
