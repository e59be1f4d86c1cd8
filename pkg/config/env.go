package config

// EnvPrefix is passed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "CHAMA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "CHAMA_APP_ENV"
	EnvPort               = "CHAMA_APP_PORT"
	EnvDBDSN              = "CHAMA_DB_DSN"
	EnvDBHost             = "CHAMA_DB_HOST"
	EnvDBUser             = "CHAMA_DB_USER"
	EnvDBName             = "CHAMA_DB_NAME"
	EnvRedisURL           = "CHAMA_REDIS_URL"
	EnvJWTSecret          = "CHAMA_JWT_SECRET"
	EnvJWTIssuer          = "CHAMA_JWT_ISSUER"
	EnvGatewayBaseURL     = "CHAMA_GATEWAY_BASE_URL"
	EnvPlatformFeePercent = "CHAMA_ENGINE_PLATFORM_FEE_PERCENT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
