package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "TEAMPRINT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	PrintifyModeInline   = "inline"
	PrintifyModeTwoPhase = "two_phase"
	PrintifyModeAuto     = "auto"
)

const (
	EnvDBDSN        = "TEAMPRINT_DB_DSN"
	EnvDBHost       = "TEAMPRINT_DB_HOST"
	EnvDBUser       = "TEAMPRINT_DB_USER"
	EnvDBName       = "TEAMPRINT_DB_NAME"
	EnvPrintifyMode = "TEAMPRINT_PRINTIFY_MODE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
