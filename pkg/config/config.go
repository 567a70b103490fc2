package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Security   SecurityConfig   `yaml:"security"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type SecurityConfig struct {
	APIKey        string `yaml:"api_key"`
	JWTSecret     string `yaml:"jwt_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	TLSCertPath   string `yaml:"tls_cert_path"`
	TLSKeyPath    string `yaml:"tls_key_path"`
}

// LedgerConfig carries per-account overdraft limits as decimal strings.
// Accounts without an entry get DefaultOverdraft (normally "0").
type LedgerConfig struct {
	DefaultOverdraft string            `yaml:"default_overdraft"`
	OverdraftLimits  map[string]string `yaml:"overdraft_limits"`
	TransitionRetry  int               `yaml:"transition_retry"`
}

type ReconcilerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		return nil, err
	}

	var config Config
	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, err
	}

	if config.Ledger.TransitionRetry <= 0 {
		config.Ledger.TransitionRetry = 3
	}

	return &config, nil
}
