package config

// KeyBrokerConfig is the top level configuration of the key broker service.
type KeyBrokerConfig struct {
	Logs              Logging         `mapstructure:"logs"`
	Server            HttpServer      `mapstructure:"server"`
	PublisherEventBus EventBusEngine  `mapstructure:"event_bus"`
	Storage           Storage         `mapstructure:"storage"`
	CryptoProviders   CryptoProviders `mapstructure:"crypto_providers"`
	Reconciliation    Reconciliation  `mapstructure:"reconciliation"`
}

type Reconciliation struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Enabled  bool     `mapstructure:"enabled"`
	// Frequency is a standard cron expression
	Frequency string `mapstructure:"frequency"`
}
