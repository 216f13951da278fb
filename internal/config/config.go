package config

type Config interface {
	EnvConfig
	ProviderConfig
	LifecycleConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	Provider
	Lifecycle
}

func New() Config {
	return mainConfig{}
}
