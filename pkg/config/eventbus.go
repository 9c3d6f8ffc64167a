package config

type EventBusProvider string

const (
	Channel EventBusProvider = "channel"
)

type EventBusEngine struct {
	LogLevel LogLevel         `mapstructure:"log_level"`
	Enabled  bool             `mapstructure:"enabled"`
	Provider EventBusProvider `mapstructure:"provider"`
}
