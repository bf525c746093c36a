package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigManager interface for configuration management
type ConfigManager interface {
	LoadConfig(configName string, config Config) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	RegisterHook(configName string, hook HookFunc)
	AddChangeListener(listener ConfigChangeListener)
	RemoveChangeListener(listener ConfigChangeListener)
	ReloadConfig(configName string) error
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}

// ValidatorFunc configuration validation function
type ValidatorFunc func(Config) error

// HookFunc configuration change hook function
type HookFunc func(oldVal, newVal Config) error

// configManager implementation of ConfigManager interface
type configManager struct {
	mu         sync.RWMutex
	configs    map[string]Config
	watchers   map[string]*fsnotify.Watcher
	validators map[string]ValidatorFunc
	hooks      map[string][]HookFunc
	listeners  []ConfigChangeListener
	basePath   string
	env        string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() ConfigManager {
	return &configManager{
		configs:    make(map[string]Config),
		watchers:   make(map[string]*fsnotify.Watcher),
		validators: make(map[string]ValidatorFunc),
		hooks:      make(map[string][]HookFunc),
		basePath:   "./configs",
		env:        "development",
	}
}

func (cm *configManager) newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.AddConfigPath(fmt.Sprintf("%s/%s", cm.basePath, cm.env))

	// Environment variables override file values, e.g. RIFT_TRANSPORT_BINDADDR.
	v.AutomaticEnv()
	v.SetEnvPrefix(strings.ToUpper(configName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// LoadConfig loads configuration from file
func (cm *configManager) LoadConfig(configName string, config Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config failed: %w", err)
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("validate config failed: %w", err)
	}
	if validator, exists := cm.validators[configName]; exists {
		if err := validator(config); err != nil {
			return fmt.Errorf("validate config failed: %w", err)
		}
	}

	cm.configs[configName] = config

	if err := cm.watchConfigFile(configName, v); err != nil {
		return fmt.Errorf("watch config file failed: %w", err)
	}

	return nil
}

// GetConfig returns a previously loaded configuration.
func (cm *configManager) GetConfig(configName string) (Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	config, exists := cm.configs[configName]
	if !exists {
		return nil, fmt.Errorf("config %s not found", configName)
	}

	return config, nil
}

// RegisterValidator registers configuration validator
func (cm *configManager) RegisterValidator(configName string, validator ValidatorFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.validators[configName] = validator
}

// RegisterHook registers configuration change hook
func (cm *configManager) RegisterHook(configName string, hook HookFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.hooks[configName] = append(cm.hooks[configName], hook)
}

// AddChangeListener registers a listener notified after each successful reload.
func (cm *configManager) AddChangeListener(listener ConfigChangeListener) {
	if listener == nil {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, l := range cm.listeners {
		if l == listener {
			return
		}
	}
	cm.listeners = append(cm.listeners, listener)
}

// RemoveChangeListener unregisters a listener. Unknown listeners are ignored.
func (cm *configManager) RemoveChangeListener(listener ConfigChangeListener) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, l := range cm.listeners {
		if l == listener {
			cm.listeners = append(cm.listeners[:i], cm.listeners[i+1:]...)
			return
		}
	}
}

// SetBasePath sets base path for configuration files
func (cm *configManager) SetBasePath(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.basePath = path
}

// SetEnvironment sets environment for configuration
func (cm *configManager) SetEnvironment(env string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.env = env
}

// watchConfigFile watches configuration file for changes. Caller holds cm.mu.
func (cm *configManager) watchConfigFile(configName string, v *viper.Viper) error {
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		return nil
	}

	if old, ok := cm.watchers[configName]; ok {
		_ = old.Close()
		delete(cm.watchers, configName)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	cm.watchers[configName] = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					if err := cm.ReloadConfig(configName); err != nil {
						fmt.Fprintf(os.Stderr, "config: reload %s failed: %v\n", configName, err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "config: watcher error: %v\n", err)
			}
		}
	}()

	return watcher.Add(configFile)
}

// ReloadConfig re-reads a loaded configuration from disk. On any failure the
// previous value stays in effect. Listeners run after the lock is released.
func (cm *configManager) ReloadConfig(configName string) error {
	cm.mu.Lock()

	oldConfig, exists := cm.configs[configName]
	if !exists {
		cm.mu.Unlock()
		return fmt.Errorf("config %s not loaded", configName)
	}

	// Create new config instance (preserve original type via reflection)
	newConfig := reflect.New(reflect.TypeOf(oldConfig).Elem()).Interface().(Config)

	v := cm.newViper(configName)
	if err := v.ReadInConfig(); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("read config failed: %w", err)
	}
	if err := v.Unmarshal(newConfig); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("unmarshal config failed: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("validate config failed: %w", err)
	}
	if validator, exists := cm.validators[configName]; exists {
		if err := validator(newConfig); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("validate config failed: %w", err)
		}
	}
	for _, hook := range cm.hooks[configName] {
		if err := hook(oldConfig, newConfig); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("hook failed: %w", err)
		}
	}

	cm.configs[configName] = newConfig
	listeners := make([]ConfigChangeListener, 0, len(cm.listeners))
	for _, l := range cm.listeners {
		if l.GetConfigName() == configName {
			listeners = append(listeners, l)
		}
	}
	cm.mu.Unlock()

	var firstErr error
	for _, l := range listeners {
		if err := l.OnConfigChanged(configName, newConfig, oldConfig); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("listener failed: %w", err)
		}
	}
	return firstErr
}

// Close closes the configuration manager
func (cm *configManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for name, watcher := range cm.watchers {
		if err := watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(cm.watchers, name)
	}

	return firstErr
}
