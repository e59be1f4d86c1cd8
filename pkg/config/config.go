package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Engine       EngineConfig
	Cron         CronConfig
	Worker       WorkerConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CHAMA_APP_ENV" required:"true"`
	Port         string `envconfig:"CHAMA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CHAMA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHAMA_LOG_WARN_STACK" default:"false"`
	// MetricsAddr exposes /metrics on the background binaries; empty disables it.
	MetricsAddr string `envconfig:"CHAMA_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"CHAMA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CHAMA_DB_DSN"`
	Driver string `envconfig:"CHAMA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHAMA_DB_HOST"`
	LegacyPort     int    `envconfig:"CHAMA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHAMA_DB_USER"`
	LegacyPassword string `envconfig:"CHAMA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHAMA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHAMA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHAMA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHAMA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHAMA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHAMA_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"CHAMA_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CHAMA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CHAMA_REDIS_ADDR"`
	Password     string        `envconfig:"CHAMA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHAMA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHAMA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHAMA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHAMA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHAMA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHAMA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CHAMA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CHAMA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CHAMA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHAMA_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	CallbackIdempotencyTTL time.Duration `envconfig:"CHAMA_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CHAMA_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CHAMA_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"CHAMA_PUBSUB_SETTLEMENT_TOPIC" default:"chama-settlement-events"`
	// CreditTopic receives loan and dividend events when set; otherwise they share the settlement topic.
	CreditTopic string `envconfig:"CHAMA_PUBSUB_CREDIT_TOPIC"`
}

// Topics lists the distinct configured topics, settlement first.
func (p PubSubConfig) Topics() []string {
	var topics []string
	for _, t := range []string{p.SettlementTopic, p.CreditTopic} {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CHAMA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CHAMA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CHAMA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// GatewayConfig points at the mobile-money adapter that owns request signing.
// CallbackURL is the base the adapter posts results under; CallbackSecret, when
// set, must be echoed in the X-Callback-Secret header.
type GatewayConfig struct {
	BaseURL        string        `envconfig:"CHAMA_GATEWAY_BASE_URL"`
	ShortCode      string        `envconfig:"CHAMA_GATEWAY_SHORTCODE"`
	CallbackURL    string        `envconfig:"CHAMA_GATEWAY_CALLBACK_URL"`
	CallbackSecret string        `envconfig:"CHAMA_GATEWAY_CALLBACK_SECRET"`
	Timeout        time.Duration `envconfig:"CHAMA_GATEWAY_TIMEOUT" default:"30s"`
	RetryAttempts  int           `envconfig:"CHAMA_GATEWAY_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff   time.Duration `envconfig:"CHAMA_GATEWAY_RETRY_BACKOFF" default:"60s"`
}

type EngineConfig struct {
	Timezone                string        `envconfig:"CHAMA_ENGINE_TIMEZONE" default:"Africa/Nairobi"`
	PendingGrace            time.Duration `envconfig:"CHAMA_ENGINE_PENDING_GRACE" default:"5m"`
	PlatformFeePercent      string        `envconfig:"CHAMA_ENGINE_PLATFORM_FEE_PERCENT" default:"10"`
	RotationShuffleAttempts int           `envconfig:"CHAMA_ENGINE_ROTATION_SHUFFLE_ATTEMPTS" default:"1000"`
	SweepBatchSize          int           `envconfig:"CHAMA_ENGINE_SWEEP_BATCH_SIZE" default:"100"`
	SweepMaxPollAttempts    int           `envconfig:"CHAMA_ENGINE_SWEEP_MAX_POLL_ATTEMPTS" default:"3"`
}

// PlatformFee returns the platform share of registration fees as a percentage.
func (e EngineConfig) PlatformFee() decimal.Decimal {
	pct, err := decimal.NewFromString(strings.TrimSpace(e.PlatformFeePercent))
	if err != nil {
		return decimal.Zero
	}
	return pct
}

func (e EngineConfig) validate() error {
	pct, err := decimal.NewFromString(strings.TrimSpace(e.PlatformFeePercent))
	if err != nil {
		return fmt.Errorf("%s must be numeric: %w", EnvPlatformFeePercent, err)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvPlatformFeePercent)
	}
	return nil
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"CHAMA_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"CHAMA_CRON_LOCK_TTL" default:"30m"`
	// OutboxRetention is how long published outbox rows are kept.
	OutboxRetention time.Duration `envconfig:"CHAMA_CRON_OUTBOX_RETENTION" default:"720h"`
}

type WorkerConfig struct {
	PoolSize       int           `envconfig:"CHAMA_WORKER_POOL_SIZE" default:"4"`
	PollInterval   time.Duration `envconfig:"CHAMA_WORKER_POLL_INTERVAL" default:"2s"`
	ClaimBatchSize int           `envconfig:"CHAMA_WORKER_CLAIM_BATCH_SIZE" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CHAMA_CORS_ALLOWED_ORIGINS"`
}

type RateLimitConfig struct {
	RegisterWindow     time.Duration `envconfig:"CHAMA_RATE_LIMIT_REGISTER_WINDOW" default:"15m"`
	RegisterIPLimit    int           `envconfig:"CHAMA_RATE_LIMIT_REGISTER_IP" default:"20"`
	RegisterPhoneLimit int           `envconfig:"CHAMA_RATE_LIMIT_REGISTER_PHONE" default:"3"`
	CallbackWindow     time.Duration `envconfig:"CHAMA_RATE_LIMIT_CALLBACK_WINDOW" default:"1m"`
	CallbackIPLimit    int           `envconfig:"CHAMA_RATE_LIMIT_CALLBACK_IP" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
