package config

// EnvPrefix is passed to envconfig; variable names are fully spelled out
// in struct tags so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "FABRIC_APP_ENV"
	EnvDBDSN    = "FABRIC_DB_DSN"
	EnvDBHost   = "FABRIC_DB_HOST"
	EnvDBUser   = "FABRIC_DB_USER"
	EnvDBName   = "FABRIC_DB_NAME"
	EnvRedisURL = "FABRIC_REDIS_URL"

	EnvGCPProjectID = "FABRIC_GCP_PROJECT_ID"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
