package config

// EnvPrefix is handed to envconfig; every field below carries an explicit
// key so the prefix only matters for error messages.
const EnvPrefix = "SCHOOLORDERS"

const (
	EnvAppEnv      = "SCHOOLORDERS_APP_ENV"
	EnvPort        = "SCHOOLORDERS_APP_PORT"
	EnvLogLevel    = "SCHOOLORDERS_LOG_LEVEL"
	EnvDBDSN       = "SCHOOLORDERS_DB_DSN"
	EnvDBHost      = "SCHOOLORDERS_DB_HOST"
	EnvDBUser      = "SCHOOLORDERS_DB_USER"
	EnvDBName      = "SCHOOLORDERS_DB_NAME"
	EnvRedisURL    = "SCHOOLORDERS_REDIS_URL"
	EnvJWTSecret   = "SCHOOLORDERS_JWT_SECRET"
	EnvJWTIssuer   = "SCHOOLORDERS_JWT_ISSUER"
	EnvJWTExpMins  = "SCHOOLORDERS_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite   = "SCHOOLORDERS_USE_SQLITE"
	EnvPublicURL   = "SCHOOLORDERS_ORDERS_PUBLIC_BASE_URL"
	EnvTolerance   = "SCHOOLORDERS_ORDERS_TOTALS_TOLERANCE"
	EnvCORSOrigins = "SCHOOLORDERS_CORS_ALLOWED_ORIGINS"

	EnvRefreshTokenTTLMinutes = "SCHOOLORDERS_REFRESH_TOKEN_TTL_MINUTES"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// legacyDBEnvVars must all be set when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
