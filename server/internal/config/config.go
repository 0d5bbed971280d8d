package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Hub       HubConfig       `yaml:"hub"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Client    ClientConfig    `yaml:"client"`
	Paging    PagingConfig    `yaml:"paging"`
	Logging   LoggingConfig   `yaml:"logging"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AllowedOrigins 是允许跨域访问与建立 websocket 的浏览器来源，为空时只接受不带 Origin 的请求
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HubConfig 推送连接配置
type HubConfig struct {
	// QueueSize 是每个连接的待发送帧上限，满了以后丢弃新帧
	QueueSize    int           `yaml:"queue_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

// RetentionConfig 草稿过期清理配置
type RetentionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Cron    string        `yaml:"cron"`
	Period  time.Duration `yaml:"period"`
}

// ClientConfig 客户端（draftwatch）访问后端的配置
type ClientConfig struct {
	ServerURL         string        `yaml:"server_url"`
	UserID            string        `yaml:"user_id"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	ReconnectMin      time.Duration `yaml:"reconnect_min"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
}

// PagingConfig 分页参数
type PagingConfig struct {
	MaxLimit    int           `yaml:"max_limit"`
	OffsetLimit int           `yaml:"offset_limit"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type PathsConfig struct {
	Seed string `yaml:"seed"`
}

// Default 返回没有配置文件时使用的默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Hub: HubConfig{
			QueueSize:    64,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: "memory"},
		Retention: RetentionConfig{
			Cron:   "0 2 * * *",
			Period: 30 * 24 * time.Hour,
		},
		Client: ClientConfig{
			ServerURL:         "http://localhost:8080",
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           10 * time.Second,
			ReconnectMin:      500 * time.Millisecond,
			ReconnectMax:      30 * time.Second,
		},
		Paging: PagingConfig{
			MaxLimit:    25,
			OffsetLimit: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load 从文件加载配置，path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load(".env")

	cfg := Default()
	if path != "" {
		fmt.Printf("📋 Loading config from: %s\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		fmt.Printf("✅ Config parsed successfully (%d bytes)\n", len(data))
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置
func (c *Config) applyEnv() error {
	if addr := os.Getenv("CHATDRAFTS_ADDR"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("parse CHATDRAFTS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("parse CHATDRAFTS_ADDR port: %w", err)
		}
		fmt.Printf("🌐 Using CHATDRAFTS_ADDR from environment: %s\n", addr)
		c.Server.Host = host
		c.Server.Port = p
	}
	if dbPath := os.Getenv("CHATDRAFTS_DB_PATH"); dbPath != "" {
		fmt.Printf("💾 Using CHATDRAFTS_DB_PATH from environment: %s\n", dbPath)
		c.Storage.Driver = "sqlite"
		c.Storage.Path = dbPath
	}
	if url := os.Getenv("CHATDRAFTS_SERVER_URL"); url != "" {
		c.Client.ServerURL = url
	}
	if userID := os.Getenv("CHATDRAFTS_USER_ID"); userID != "" {
		c.Client.UserID = userID
	}
	return nil
}

// Addr 返回 HTTP 监听地址
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Retention.Enabled {
		if !gronx.New().IsValid(c.Retention.Cron) {
			return fmt.Errorf("invalid retention.cron: %q", c.Retention.Cron)
		}
		if c.Retention.Period <= 0 {
			return fmt.Errorf("retention.period must be positive")
		}
	}
	if c.Paging.MaxLimit <= 0 {
		return fmt.Errorf("paging.max_limit must be positive")
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("client.requests_per_second must not be negative")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub.queue_size must be positive")
	}
	return nil
}
