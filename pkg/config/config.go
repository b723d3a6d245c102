package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Retention    RetentionConfig
	Consumer     ConsumerConfig
	Ops          OpsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FABRIC_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"FABRIC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FABRIC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FABRIC_SERVICE_KIND" default:"outbox-publisher"`
}

type DBConfig struct {
	DSN    string `envconfig:"FABRIC_DB_DSN"`
	Driver string `envconfig:"FABRIC_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FABRIC_DB_HOST"`
	Port     int    `envconfig:"FABRIC_DB_PORT" default:"5432"`
	User     string `envconfig:"FABRIC_DB_USER"`
	Password string `envconfig:"FABRIC_DB_PASSWORD"`
	Name     string `envconfig:"FABRIC_DB_NAME"`
	SSLMode  string `envconfig:"FABRIC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FABRIC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FABRIC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FABRIC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FABRIC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FABRIC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FABRIC_REDIS_ADDR"`
	Password     string        `envconfig:"FABRIC_REDIS_PASSWORD"`
	DB           int           `envconfig:"FABRIC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FABRIC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FABRIC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FABRIC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FABRIC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FABRIC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FABRIC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FABRIC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FABRIC_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig is the destination routing table: one topic per aggregate
// type plus a mandatory catch-all so events for unrecognized aggregate
// types are never dropped.
type PubSubConfig struct {
	CompanyTopic      string `envconfig:"FABRIC_PUBSUB_COMPANY_TOPIC" default:"company-events"`
	UserTopic         string `envconfig:"FABRIC_PUBSUB_USER_TOPIC" default:"user-events"`
	ContactTopic      string `envconfig:"FABRIC_PUBSUB_CONTACT_TOPIC" default:"contact-events"`
	FiberTopic        string `envconfig:"FABRIC_PUBSUB_FIBER_TOPIC" default:"fiber-events"`
	NotificationTopic string `envconfig:"FABRIC_PUBSUB_NOTIFICATION_TOPIC" default:"notification-events"`
	SecurityTopic     string `envconfig:"FABRIC_PUBSUB_SECURITY_TOPIC" default:"security-events"`
	DefaultTopic      string `envconfig:"FABRIC_PUBSUB_DEFAULT_TOPIC" default:"default-events" validate:"required"`

	EventsSubscription string `envconfig:"FABRIC_PUBSUB_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FABRIC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50" validate:"gte=1,lte=1000"`
	PollInterval   time.Duration `envconfig:"FABRIC_OUTBOX_PUBLISH_POLL_INTERVAL" default:"1s" validate:"gt=0"`
	MaxRetries     int           `envconfig:"FABRIC_OUTBOX_MAX_RETRIES" default:"3" validate:"gte=1"`
	InitialBackoff time.Duration `envconfig:"FABRIC_OUTBOX_BACKOFF_INITIAL" default:"1s" validate:"gt=0"`
	MaxBackoff     time.Duration `envconfig:"FABRIC_OUTBOX_BACKOFF_MAX" default:"30s" validate:"gt=0,gtefield=InitialBackoff"`
	PublishTimeout time.Duration `envconfig:"FABRIC_OUTBOX_PUBLISH_TIMEOUT" default:"500ms" validate:"gt=0,ltfield=PollInterval"`
	StuckTimeout   time.Duration `envconfig:"FABRIC_OUTBOX_STUCK_TIMEOUT" default:"1m" validate:"gt=0"`
}

type RetentionConfig struct {
	Days            int           `envconfig:"FABRIC_OUTBOX_RETENTION_DAYS" default:"7" validate:"gte=1"`
	CleanupInterval time.Duration `envconfig:"FABRIC_OUTBOX_CLEANUP_INTERVAL" default:"24h" validate:"gt=0"`
	ReplayInterval  time.Duration `envconfig:"FABRIC_OUTBOX_REPLAY_INTERVAL" default:"5m" validate:"gt=0"`
	ReplayCeiling   int           `envconfig:"FABRIC_OUTBOX_REPLAY_CEILING" default:"0" validate:"gte=0"`
}

type ConsumerConfig struct {
	Name           string        `envconfig:"FABRIC_CONSUMER_NAME" default:"event-consumer"`
	IdempotencyTTL time.Duration `envconfig:"FABRIC_CONSUMER_IDEMPOTENCY_TTL" default:"720h" validate:"gte=0"`
}

type OpsConfig struct {
	Port string `envconfig:"FABRIC_OPS_PORT" default:"9090"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FABRIC_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
