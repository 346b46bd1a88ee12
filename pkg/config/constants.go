package config

const (
	// EnvPrefix is passed to envconfig; individual fields carry fully
	// prefixed names so this stays empty.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "SENTIO_APP_ENV"
	EnvPort     = "SENTIO_APP_PORT"
	EnvRedisURL = "SENTIO_REDIS_URL"

	EnvDBDSN  = "SENTIO_DB_DSN"
	EnvDBHost = "SENTIO_DB_HOST"
	EnvDBUser = "SENTIO_DB_USER"
	EnvDBName = "SENTIO_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
