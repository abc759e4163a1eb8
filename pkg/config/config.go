package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Orders        OrdersConfig
	CORS          CORSConfig
	Bootstrap     BootstrapConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SCHOOLORDERS_APP_ENV" required:"true"`
	Port         string `envconfig:"SCHOOLORDERS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SCHOOLORDERS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SCHOOLORDERS_LOG_WARN_STACK" default:"false"`

	ShutdownTimeout time.Duration `envconfig:"SCHOOLORDERS_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	DSN    string `envconfig:"SCHOOLORDERS_DB_DSN"`
	Driver string `envconfig:"SCHOOLORDERS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCHOOLORDERS_DB_HOST"`
	LegacyPort     int    `envconfig:"SCHOOLORDERS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCHOOLORDERS_DB_USER"`
	LegacyPassword string `envconfig:"SCHOOLORDERS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCHOOLORDERS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCHOOLORDERS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCHOOLORDERS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCHOOLORDERS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCHOOLORDERS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCHOOLORDERS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCHOOLORDERS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SCHOOLORDERS_REDIS_ADDR"`
	Password     string        `envconfig:"SCHOOLORDERS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCHOOLORDERS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCHOOLORDERS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCHOOLORDERS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCHOOLORDERS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCHOOLORDERS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCHOOLORDERS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SCHOOLORDERS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SCHOOLORDERS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SCHOOLORDERS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SCHOOLORDERS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SCHOOLORDERS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SCHOOLORDERS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SCHOOLORDERS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SCHOOLORDERS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SCHOOLORDERS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"SCHOOLORDERS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"SCHOOLORDERS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"SCHOOLORDERS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	PublicWindow    time.Duration `envconfig:"SCHOOLORDERS_RATE_LIMIT_PUBLIC_WINDOW" default:"1m"`
	PublicIPLimit   int           `envconfig:"SCHOOLORDERS_RATE_LIMIT_PUBLIC_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SCHOOLORDERS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SCHOOLORDERS_AUTO_MIGRATE" default:"false"`
}

type OrdersConfig struct {
	PublicBaseURL        string `envconfig:"SCHOOLORDERS_ORDERS_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	TotalsTolerance      string `envconfig:"SCHOOLORDERS_ORDERS_TOTALS_TOLERANCE" default:"0.01"`
	RejectTotalsMismatch bool   `envconfig:"SCHOOLORDERS_ORDERS_REJECT_TOTALS_MISMATCH" default:"false"`
	ShareTokenAttempts   int    `envconfig:"SCHOOLORDERS_ORDERS_SHARE_TOKEN_ATTEMPTS" default:"3"`
}

// Tolerance returns the parsed totals tolerance; validate guarantees it parses.
func (o OrdersConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(o.TotalsTolerance))
	if err != nil {
		return decimal.New(1, -2)
	}
	return d
}

func (o OrdersConfig) validate() error {
	d, err := decimal.NewFromString(strings.TrimSpace(o.TotalsTolerance))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvTolerance, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvTolerance)
	}
	if _, err := url.Parse(o.PublicBaseURL); err != nil {
		return fmt.Errorf("%s: %w", EnvPublicURL, err)
	}
	return nil
}

// BootstrapConfig seeds the first admin account on startup when both fields are set.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"SCHOOLORDERS_BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"SCHOOLORDERS_BOOTSTRAP_ADMIN_PASSWORD"`
	AdminName     string `envconfig:"SCHOOLORDERS_BOOTSTRAP_ADMIN_NAME" default:"Administrator"`
}

// Enabled reports whether an admin should be seeded.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != "" && b.AdminPassword != ""
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"SCHOOLORDERS_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		db.DSN = "file:schoolorders.db?_foreign_keys=on"
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
