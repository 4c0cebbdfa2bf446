package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Faucet     FaucetConfig    `mapstructure:"faucet"`
	Payout     PayoutConfig    `mapstructure:"payout"`
	Wallet     WalletConfig    `mapstructure:"wallet"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Projector  ProjectorConfig `mapstructure:"projector"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Admin      AdminConfig     `mapstructure:"admin"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// FaucetConfig holds the user-facing knobs of the faucet.
type FaucetConfig struct {
	Name     string        `mapstructure:"name"`
	Symbol   string        `mapstructure:"symbol"`
	Category string        `mapstructure:"category"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Password switches the throttle to shared-secret mode when non-empty.
	Password          string   `mapstructure:"password"`
	OriginHeaders     []string `mapstructure:"origin_headers"`
	AllowDirectAccess bool     `mapstructure:"allow_direct_access"`
	ThrottleStore     string   `mapstructure:"throttle_store"` // memory|redis|mysql
}

type PayoutConfig struct {
	BaseAmount    int64         `mapstructure:"base_amount"`
	MinAmount     int64         `mapstructure:"min_amount"`
	MaxShareBps   int64         `mapstructure:"max_share_bps"`
	ReserveAmount int64         `mapstructure:"reserve_amount"`
	Window        time.Duration `mapstructure:"window"`
	TargetClaims  int64         `mapstructure:"target_claims"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type WalletConfig struct {
	URL            string        `mapstructure:"url"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	MinConf        int           `mapstructure:"min_conf"`
	BalanceTimeout time.Duration `mapstructure:"balance_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	ClaimsTopic    string   `mapstructure:"claims_topic"`
	ReconcileTopic string   `mapstructure:"reconcile_topic"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type ProjectorConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type RateLimitConfig struct {
	RPS   int    `mapstructure:"rps"`
	Burst int    `mapstructure:"burst"`
	Store string `mapstructure:"store"` // redis|memory
}

type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// PasswordMode reports whether claims are gated by the shared password
// instead of per-origin cooldowns.
func (c FaucetConfig) PasswordMode() bool { return c.Password != "" }

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (FAUCET_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (FAUCET_*), nested keys use "_" e.g. FAUCET_FAUCET_PASSWORD
	v.SetEnvPrefix("FAUCET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
