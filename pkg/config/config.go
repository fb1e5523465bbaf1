package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "POS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	JWT   JWTConfig
	Sales SalesConfig
	Sync  SyncConfig
}

// Load reads POS_* environment variables. Callers load .env beforehand.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSync reads only the client settings. Clients never open the database.
func LoadSync() (*SyncConfig, error) {
	var cfg SyncConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Name         string `envconfig:"POS_APP_NAME" default:"POS Sync v1.0"`
	Env          string `envconfig:"POS_APP_ENV" default:"dev"`
	Port         string `envconfig:"POS_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POS_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"POS_AUTO_MIGRATE" default:"true"`
	AccessLog    bool   `envconfig:"POS_ACCESS_LOG" default:"true"`

	// Stored on first boot only; change them afterwards with cmd/set-password.
	SeedUserPassword  string `envconfig:"POS_SEED_USER_PASSWORD" default:"1234"`
	SeedAdminPassword string `envconfig:"POS_SEED_ADMIN_PASSWORD" default:"admin123"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"POS_DB_DSN"`
	Driver string `envconfig:"POS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"POS_DB_HOST"`
	Port     int    `envconfig:"POS_DB_PORT" default:"5432"`
	User     string `envconfig:"POS_DB_USER"`
	Password string `envconfig:"POS_DB_PASSWORD"`
	Name     string `envconfig:"POS_DB_NAME"`
	SSLMode  string `envconfig:"POS_DB_SSLMODE" default:"disable"`
	TimeZone string `envconfig:"POS_DB_TIMEZONE" default:"UTC"`

	MaxOpenConns    int           `envconfig:"POS_DB_MAX_OPEN_CONNS" default:"100"`
	MaxIdleConns    int           `envconfig:"POS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POS_DB_CONN_MAX_LIFETIME" default:"1h"`
	LogQueries      bool          `envconfig:"POS_DB_LOG_QUERIES" default:"false"`

	// The database may still be starting when the API boots.
	PingAttempts int           `envconfig:"POS_DB_PING_ATTEMPTS" default:"5"`
	PingBackoff  time.Duration `envconfig:"POS_DB_PING_BACKOFF" default:"2s"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	switch strings.ToLower(d.Driver) {
	case DriverSQLite:
		d.DSN = "file:pos.db?_foreign_keys=on"
		return nil
	case DriverPostgres, "":
		if d.Host == "" || d.User == "" || d.Name == "" {
			return fmt.Errorf("POS_DB_DSN or POS_DB_HOST/POS_DB_USER/POS_DB_NAME are required")
		}
		d.DSN = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
			d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone,
		)
		return nil
	default:
		return fmt.Errorf("unsupported POS_DB_DRIVER %q", d.Driver)
	}
}

// RedisConfig is optional; an empty URL keeps the change feed in-process.
type RedisConfig struct {
	URL         string        `envconfig:"POS_REDIS_URL"`
	Channel     string        `envconfig:"POS_REDIS_CHANNEL" default:"pos:changes"`
	DialTimeout time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type JWTConfig struct {
	Secret          string `envconfig:"POS_JWT_SECRET" default:"change-me-in-production"`
	Issuer          string `envconfig:"POS_JWT_ISSUER" default:"go-pos-sync"`
	ExpirationHours int    `envconfig:"POS_JWT_EXPIRATION_HOURS" default:"24"`
}

func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(j.ExpirationHours) * time.Hour
}

type SalesConfig struct {
	OrderNumberMaxRetries int  `envconfig:"POS_ORDER_NUMBER_MAX_RETRIES" default:"3"`
	AtomicCreate          bool `envconfig:"POS_SALE_ATOMIC_CREATE" default:"true"`
	LowStockThreshold     int  `envconfig:"POS_LOW_STOCK_THRESHOLD" default:"10"`
}

// SyncConfig drives the client tools (cmd/orders-board, cmd/till).
type SyncConfig struct {
	BaseURL      string        `envconfig:"POS_SYNC_BASE_URL" default:"http://localhost:3000"`
	Role         string        `envconfig:"POS_SYNC_ROLE" default:"user"`
	Password     string        `envconfig:"POS_SYNC_PASSWORD"`
	PollInterval time.Duration `envconfig:"POS_SYNC_POLL_INTERVAL" default:"3s"`
	ResyncEvery  int           `envconfig:"POS_SYNC_RESYNC_EVERY" default:"20"`
	DeviceID     string        `envconfig:"POS_SYNC_DEVICE_ID" default:"orders-board"`
	CartDBPath   string        `envconfig:"POS_CART_DB_PATH" default:"cart.db"`
}
