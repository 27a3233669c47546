package config

import "github.com/joho/godotenv"

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	SessionConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetAPIBaseURL() string
	GetLogLevel() string
	GetSystemAdminUser() string
	GetSystemAdminPassword() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	Security
	Session
	Storage
}

// New loads an optional .env file from the working directory and returns the
// environment backed configuration. Variables already set in the process
// environment take precedence over the file.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}

// Load is like New but reads the given dotenv files, failing when one cannot be read.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		return nil, err
	}
	return mainConfig{}, nil
}
