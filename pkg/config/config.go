package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	DB          DBConfig
	Redis       RedisConfig
	GCP         GCPConfig
	PubSub      PubSubConfig
	Outbox      OutboxConfig
	Eventing    EventingConfig
	Stripe      StripeConfig
	Checkout    CheckoutConfig
	Printify    PrintifyConfig
	Catalog     CatalogConfig
	Fulfillment FulfillmentConfig
	Cron        CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Printify.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TEAMPRINT_APP_ENV" required:"true"`
	Port         string `envconfig:"TEAMPRINT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TEAMPRINT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TEAMPRINT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TEAMPRINT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"TEAMPRINT_CORS_ORIGINS" default:"http://localhost:3000"`
	AdminToken   string `envconfig:"TEAMPRINT_ADMIN_TOKEN"`
	AutoMigrate  bool   `envconfig:"TEAMPRINT_AUTO_MIGRATE" default:"false"`
	MetricsPort  string `envconfig:"TEAMPRINT_METRICS_PORT"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	origins := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"TEAMPRINT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TEAMPRINT_DB_DSN"`
	Driver string `envconfig:"TEAMPRINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TEAMPRINT_DB_HOST"`
	LegacyPort     int    `envconfig:"TEAMPRINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TEAMPRINT_DB_USER"`
	LegacyPassword string `envconfig:"TEAMPRINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"TEAMPRINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"TEAMPRINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TEAMPRINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TEAMPRINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TEAMPRINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TEAMPRINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"TEAMPRINT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TEAMPRINT_REDIS_URL"`
	Address      string        `envconfig:"TEAMPRINT_REDIS_ADDR"`
	Password     string        `envconfig:"TEAMPRINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TEAMPRINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TEAMPRINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TEAMPRINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TEAMPRINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TEAMPRINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TEAMPRINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TEAMPRINT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TEAMPRINT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TEAMPRINT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"TEAMPRINT_PUBSUB_ORDERS_TOPIC" default:"tp-order-events"`
	OrdersSubscription string `envconfig:"TEAMPRINT_PUBSUB_ORDERS_SUBSCRIPTION" default:"tp-order-events-fulfillment"`
	MaxOutstanding     int    `envconfig:"TEAMPRINT_PUBSUB_MAX_OUTSTANDING" default:"10"`
	ReceiveGoroutines  int    `envconfig:"TEAMPRINT_PUBSUB_RECEIVE_GOROUTINES" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TEAMPRINT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TEAMPRINT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TEAMPRINT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TEAMPRINT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"TEAMPRINT_EVENTING_IDEMPOTENCY_TTL" default:"168h"`
	WebhookIdempotencyTTL  time.Duration `envconfig:"TEAMPRINT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"TEAMPRINT_STRIPE_API_KEY"`
	Secret   string `envconfig:"TEAMPRINT_STRIPE_SECRET"`
	Env      string `envconfig:"TEAMPRINT_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"TEAMPRINT_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	SiteURL            string  `envconfig:"TEAMPRINT_SITE_URL" default:"http://localhost:3000"`
	SuccessPath        string  `envconfig:"TEAMPRINT_CHECKOUT_SUCCESS_PATH" default:"/checkout/success"`
	CancelPath         string  `envconfig:"TEAMPRINT_CHECKOUT_CANCEL_PATH" default:"/checkout/cancel"`
	DefaultMarkupPct   float64 `envconfig:"TEAMPRINT_CHECKOUT_DEFAULT_MARKUP_PCT" default:"50"`
	BulkTierOneQty     int     `envconfig:"TEAMPRINT_CHECKOUT_BULK_TIER_ONE_QTY" default:"10"`
	BulkTierOnePercent float64 `envconfig:"TEAMPRINT_CHECKOUT_BULK_TIER_ONE_PCT" default:"10"`
	BulkTierTwoQty     int     `envconfig:"TEAMPRINT_CHECKOUT_BULK_TIER_TWO_QTY" default:"20"`
	BulkTierTwoPercent float64 `envconfig:"TEAMPRINT_CHECKOUT_BULK_TIER_TWO_PCT" default:"15"`
}

// SuccessURL returns the absolute redirect target for a paid session.
func (c CheckoutConfig) SuccessURL() string {
	return joinURL(c.SiteURL, c.SuccessPath) + "?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL returns the absolute redirect target for an abandoned session.
func (c CheckoutConfig) CancelURL() string {
	return joinURL(c.SiteURL, c.CancelPath)
}

type PrintifyConfig struct {
	APIToken string        `envconfig:"TEAMPRINT_PRINTIFY_API_TOKEN"`
	ShopID   string        `envconfig:"TEAMPRINT_PRINTIFY_SHOP_ID"`
	BaseURL  string        `envconfig:"TEAMPRINT_PRINTIFY_BASE_URL" default:"https://api.printify.com/v1"`
	Timeout  time.Duration `envconfig:"TEAMPRINT_PRINTIFY_TIMEOUT" default:"15s"`
	Mode     string        `envconfig:"TEAMPRINT_PRINTIFY_MODE" default:"auto"`
}

func (p PrintifyConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case PrintifyModeInline, PrintifyModeTwoPhase, PrintifyModeAuto, "":
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvPrintifyMode, PrintifyModeInline, PrintifyModeTwoPhase, PrintifyModeAuto)
	}
}

type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"TEAMPRINT_CATALOG_CACHE_TTL" default:"15m"`
}

type FulfillmentConfig struct {
	LockTTL        time.Duration `envconfig:"TEAMPRINT_FULFILLMENT_LOCK_TTL" default:"2m"`
	LockWait       time.Duration `envconfig:"TEAMPRINT_FULFILLMENT_LOCK_WAIT" default:"10s"`
	ProductMemoTTL time.Duration `envconfig:"TEAMPRINT_FULFILLMENT_PRODUCT_MEMO_TTL" default:"168h"`
	RetryInterval  time.Duration `envconfig:"TEAMPRINT_FULFILLMENT_RETRY_INTERVAL" default:"10m"`
	RetryGrace     time.Duration `envconfig:"TEAMPRINT_FULFILLMENT_RETRY_GRACE" default:"5m"`
	RetryBatchSize int           `envconfig:"TEAMPRINT_FULFILLMENT_RETRY_BATCH_SIZE" default:"25"`
	MaxAttempts    int           `envconfig:"TEAMPRINT_FULFILLMENT_MAX_ATTEMPTS" default:"8"`
}

type CronConfig struct {
	LockTTL           time.Duration `envconfig:"TEAMPRINT_CRON_LOCK_TTL" default:"5m"`
	AttemptCounterTTL time.Duration `envconfig:"TEAMPRINT_CRON_ATTEMPT_COUNTER_TTL" default:"168h"`
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

func joinURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}
