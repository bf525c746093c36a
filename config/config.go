// Package config provides viper-backed configuration loading with hot reload
// for the rift transport adapter.
package config

// Config interface defines the basic configuration contract
type Config interface {
	GetName() string
	Validate() error
}

// ConfigChangeListener is notified after a configuration has been reloaded
// and validated.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
	GetConfigName() string
}
