package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Media     MediaConfig     `mapstructure:"media"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type LedgerConfig struct {
	RPCURL    string `mapstructure:"rpc_url" validate:"required,url"`
	WSURL     string `mapstructure:"ws_url" validate:"required,url"`
	ProgramID string `mapstructure:"program_id" validate:"required"`
	Treasury  string `mapstructure:"treasury" validate:"required"`
}

type WalletConfig struct {
	// KeypairPath points at a Solana CLI keypair JSON file; empty means read-only.
	KeypairPath string `mapstructure:"keypair_path"`
}

type RateLimitConfig struct {
	Budget         int           `mapstructure:"budget" validate:"gte=1"`
	Window         time.Duration `mapstructure:"window" validate:"gt=0"`
	Spacing        time.Duration `mapstructure:"spacing" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

type CacheConfig struct {
	Backend        string        `mapstructure:"backend" validate:"oneof=memory redis database"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	DatabaseDSN    string        `mapstructure:"database_dsn"`
	PostsFresh     time.Duration `mapstructure:"posts_fresh"`
	PostsStale     time.Duration `mapstructure:"posts_stale"`
	ProfilesFresh  time.Duration `mapstructure:"profiles_fresh"`
	ProfilesStale  time.Duration `mapstructure:"profiles_stale"`
	RelationsFresh time.Duration `mapstructure:"relations_fresh"`
	RelationsStale time.Duration `mapstructure:"relations_stale"`
	MetadataTTL    time.Duration `mapstructure:"metadata_ttl"`
}

type SyncConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	PollLimit        int           `mapstructure:"poll_limit" validate:"gte=1"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	Heartbeat        time.Duration `mapstructure:"heartbeat" validate:"gt=0"`
	ReconnectBase    time.Duration `mapstructure:"reconnect_base" validate:"gt=0"`
	ReconnectCap     time.Duration `mapstructure:"reconnect_cap" validate:"gtefield=ReconnectBase"`
	MaxReconnects    int           `mapstructure:"max_reconnects" validate:"gte=0"`
	RelayChannel     string        `mapstructure:"relay_channel"`
	Streaming        bool          `mapstructure:"streaming"`
}

type MediaConfig struct {
	Gateways []string `mapstructure:"gateways" validate:"dive,url"`
	PinURL   string   `mapstructure:"pin_url"`
	PinToken string   `mapstructure:"pin_token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	SentryDSN    string `mapstructure:"sentry_dsn"`
	Environment  string `mapstructure:"environment"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("ledger.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("ledger.ws_url", "wss://api.devnet.solana.com")
	v.SetDefault("ledger.program_id", "2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")
	v.SetDefault("ledger.treasury", "2dMkuyNN2mUiSWyW1UGTRE7CkfULpudVdMCbASCChLpv")

	v.SetDefault("wallet.keypair_path", "")

	v.SetDefault("rate_limit.budget", 5)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.spacing", 3*time.Second)
	v.SetDefault("rate_limit.request_timeout", 15*time.Second)

	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", 10*time.Second)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.database_dsn", "file:solcials-cache.db")
	v.SetDefault("cache.posts_fresh", time.Minute)
	v.SetDefault("cache.posts_stale", 10*time.Minute)
	v.SetDefault("cache.profiles_fresh", 5*time.Minute)
	v.SetDefault("cache.profiles_stale", 30*time.Minute)
	v.SetDefault("cache.relations_fresh", 10*time.Minute)
	v.SetDefault("cache.relations_stale", time.Hour)
	v.SetDefault("cache.metadata_ttl", time.Hour)

	v.SetDefault("sync.poll_interval", time.Minute)
	v.SetDefault("sync.poll_limit", 50)
	v.SetDefault("sync.failure_threshold", 3)
	v.SetDefault("sync.cooldown", 5*time.Minute)
	v.SetDefault("sync.heartbeat", 30*time.Second)
	v.SetDefault("sync.reconnect_base", time.Second)
	v.SetDefault("sync.reconnect_cap", 30*time.Second)
	v.SetDefault("sync.max_reconnects", 5)
	v.SetDefault("sync.relay_channel", "")
	v.SetDefault("sync.streaming", true)

	v.SetDefault("media.gateways", []string{
		"https://gateway.pinata.cloud/ipfs/",
		"https://ipfs.io/ipfs/",
		"https://cloudflare-ipfs.com/ipfs/",
	})
	v.SetDefault("media.pin_url", "https://api.pinata.cloud/pinning/pinFileToIPFS")
	v.SetDefault("media.pin_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telemetry.service_name", "solcials-sync")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sentry_dsn", "")

	v.SetDefault("auth.jwt_secret", "")
}

// Load 读取 config.yaml（可选）与 SOLCIALS_ 前缀的环境变量
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("SOLCIALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
