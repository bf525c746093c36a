// Package plugin creates transports from configuration. Factories register
// by type and name; InitPlugins builds one instance per configured section
// and keeps them in sync with configuration reloads.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lcx/rift/config"
	"github.com/lcx/rift/log"
)

// Type represents the plugin category.
type Type string

const (
	// Transport is the type of poll-based network transports.
	Transport Type = "transport"
)

const (
	DefaultInsName = "default" // DefaultInsName is the instance name used when a section has no tag.
)

// ErrFactoryNotFound is returned when no factory is registered for a type and name.
var ErrFactoryNotFound = errors.New("plugin factory not found")

// PluginConfig represents the plugin configuration structure.
// Structure: map[plugin_type][factory_name_suffix] = config_items
// Example YAML:
//
//	transport:
//	  tcp_game:
//	    bindAddr: 0.0.0.0
//	    defaultMaxConnections: 128
//	  ws_web:
//	    tag: web
type PluginConfig map[string]map[string]map[string]any

// GetName implements the config.Config interface.
func (c *PluginConfig) GetName() string {
	return "plugin"
}

// Validate implements the config.Config interface.
func (c *PluginConfig) Validate() error {
	if c == nil || len(*c) == 0 {
		return fmt.Errorf("plugin config is empty")
	}

	for pluginType, factories := range *c {
		if len(factories) == 0 {
			return fmt.Errorf("plugin type %s has no factory config", pluginType)
		}
		for factoryName, instances := range factories {
			if instances == nil {
				return fmt.Errorf("plugin %s_%s has no instance config", pluginType, factoryName)
			}
		}
	}

	return nil
}

// Plugin represents a plugin instance.
type Plugin interface { //nolint:revive
	FactoryName() string
}

type pluginMgr struct {
	// insMap: type -> factory -> instance
	insMap map[string]map[string]map[string]Plugin
}

var (
	_pluginLock sync.RWMutex
	_pluginMgr  = &pluginMgr{insMap: make(map[string]map[string]map[string]Plugin)}
)

// setupRecord tracks one instance created during a setup pass.
type setupRecord struct {
	ft, fn, pn string
	ins        Plugin
}

// RegisterPlugin registers a plugin factory. Usually called from init.
func RegisterPlugin(f Factory) {
	_pluginLock.Lock()
	defer _pluginLock.Unlock()
	_factoryMap[fmt.Sprintf("%s_%s", f.Type(), f.Name())] = f
}

// InitPlugins loads the "plugin" configuration from the process config
// manager and sets up every configured instance.
func InitPlugins() error {
	return InitPluginsWithConfigManager(config.GetInstance())
}

// InitPluginsWithConfigManager sets up every instance configured in cm and
// follows later reloads. Instances created before a failure are destroyed.
func InitPluginsWithConfigManager(cm config.ConfigManager) error {
	if cm == nil {
		return errors.New("configManager cannot be nil")
	}

	var cfg PluginConfig
	if err := cm.LoadConfig("plugin", &cfg); err != nil {
		return fmt.Errorf("load plugin config failed: %w", err)
	}

	_pluginLock.Lock()
	created, err := setupLocked(cfg, nil)
	_pluginLock.Unlock()
	if err != nil {
		return err
	}

	cm.AddChangeListener(_pluginMgr)
	log.Info().Int("count", len(created)).Msg("InitPlugins success")
	return nil
}

// GetConfigName implements config.ConfigChangeListener.
func (pm *pluginMgr) GetConfigName() string {
	return "plugin"
}

// OnConfigChanged implements config.ConfigChangeListener.
//
// Instances whose section still exists are reloaded in place. The rest are
// destroyed and sections without an instance are set up. Nothing changes if
// an instance that would be destroyed reports it cannot be deleted.
func (pm *pluginMgr) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "plugin" {
		return nil
	}

	newCfg, ok := newConfig.(*PluginConfig)
	if !ok {
		return fmt.Errorf("invalid config type: expected *PluginConfig, got %T", newConfig)
	}

	_pluginLock.Lock()
	defer _pluginLock.Unlock()

	wanted := make(map[string]map[string]any)
	for ft, s := range *newCfg {
		for k, c := range s {
			wanted[instanceKey(ft, getFactoryName(k), getPluginNameFromCfg(c))] = c
		}
	}

	// Safety check before touching anything
	for ft, factories := range pm.insMap {
		for fn, instances := range factories {
			f := _factoryMap[fmt.Sprintf("%s_%s", ft, fn)]
			if f == nil {
				continue
			}
			for pn, ins := range instances {
				if _, keep := wanted[instanceKey(ft, fn, pn)]; !keep && !f.CanDelete(ins) {
					return fmt.Errorf("plugin [%s/%s/%s] cannot be deleted: has live sessions", ft, fn, pn)
				}
			}
		}
	}

	reloaded := make(map[string]bool)
	for ft, factories := range pm.insMap {
		for fn, instances := range factories {
			f := _factoryMap[fmt.Sprintf("%s_%s", ft, fn)]
			for pn, ins := range instances {
				key := instanceKey(ft, fn, pn)
				if c, keep := wanted[key]; keep && f != nil {
					err := f.Reload(ins, c)
					if err == nil {
						reloaded[key] = true
						log.Info().Str("type", ft).Str("factory", fn).Str("instance", pn).Msg("plugin reloaded")
						continue
					}
					if !f.CanDelete(ins) {
						return fmt.Errorf("plugin [%s/%s/%s] reload failed and instance is busy: %w", ft, fn, pn, err)
					}
					log.Warn().Err(err).Str("type", ft).Str("factory", fn).Str("instance", pn).
						Msg("plugin reload failed, recreating")
				}

				if f != nil {
					if err := f.Destroy(ins, nil); err != nil {
						log.Error().Err(err).Str("type", ft).Str("factory", fn).Str("instance", pn).
							Msg("destroy plugin failed")
					}
				}
				delete(instances, pn)
			}
			if len(instances) == 0 {
				delete(factories, fn)
			}
		}
		if len(factories) == 0 {
			delete(pm.insMap, ft)
		}
	}

	created, err := setupLocked(*newCfg, reloaded)
	if err != nil {
		return err
	}

	log.Info().Int("reloaded", len(reloaded)).Int("recreated", len(created)).
		Msg("all plugins hot reload completed")
	return nil
}

// setupLocked creates every instance in cfg except those in skip. On failure
// the instances it created are destroyed again. Caller holds _pluginLock.
func setupLocked(cfg PluginConfig, skip map[string]bool) ([]setupRecord, error) {
	var created []setupRecord

	for ft, s := range cfg {
		haveDefault := false
		for k, c := range s {
			fn := getFactoryName(k)
			pn := getPluginNameFromCfg(c)

			if pn == DefaultInsName {
				if haveDefault {
					rollbackLocked(created)
					return nil, fmt.Errorf("plugin type [%s] default instance already exists", ft)
				}
				haveDefault = true
			}
			if skip[instanceKey(ft, fn, pn)] {
				continue
			}

			f := _factoryMap[fmt.Sprintf("%s_%s", ft, fn)]
			if f == nil {
				rollbackLocked(created)
				return nil, fmt.Errorf("%w: [%s/%s], available factories: %v",
					ErrFactoryNotFound, ft, fn, listFactoriesLocked(ft))
			}

			log.Info().Str("type", string(f.Type())).Str("name", f.Name()).Msg("plugin setup begin")
			ins, err := f.Setup(c)
			if err != nil {
				rollbackLocked(created)
				return nil, fmt.Errorf("plugin [%s/%s] setup failed: %w", ft, fn, err)
			}

			if err := registerInsLocked(ft, fn, pn, ins); err != nil {
				_ = f.Destroy(ins, nil)
				rollbackLocked(created)
				return nil, err
			}
			created = append(created, setupRecord{ft, fn, pn, ins})

			log.Info().Str("type", string(f.Type())).Str("name", f.Name()).
				Str("instance", pn).Msg("plugin setup success")
		}
	}
	return created, nil
}

func registerInsLocked(ft, fn, pn string, ins Plugin) error {
	factories, ok := _pluginMgr.insMap[ft]
	if !ok {
		factories = make(map[string]map[string]Plugin)
		_pluginMgr.insMap[ft] = factories
	}
	instances, ok := factories[fn]
	if !ok {
		instances = make(map[string]Plugin)
		factories[fn] = instances
	}
	if _, dup := instances[pn]; dup {
		return fmt.Errorf("plugin instance [%s/%s/%s] already registered", ft, fn, pn)
	}
	instances[pn] = ins
	return nil
}

// rollbackLocked destroys and unregisters the given instances in reverse order.
func rollbackLocked(records []setupRecord) {
	if len(records) == 0 {
		return
	}

	log.Warn().Int("count", len(records)).Msg("rolling back initialized plugins...")
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if f := _factoryMap[fmt.Sprintf("%s_%s", r.ft, r.fn)]; f != nil {
			if err := f.Destroy(r.ins, nil); err != nil {
				log.Error().Err(err).Str("type", r.ft).Str("factory", r.fn).
					Str("instance", r.pn).Msg("rollback failed")
			}
		}
		if instances := _pluginMgr.insMap[r.ft][r.fn]; instances != nil {
			delete(instances, r.pn)
		}
	}
}

// DestroyPlugins destroys every instance, e.g. on shutdown.
func DestroyPlugins() {
	_pluginLock.Lock()
	defer _pluginLock.Unlock()

	for ft, factories := range _pluginMgr.insMap {
		for fn, instances := range factories {
			f := _factoryMap[fmt.Sprintf("%s_%s", ft, fn)]
			for pn, ins := range instances {
				if f == nil {
					continue
				}
				if err := f.Destroy(ins, nil); err != nil {
					log.Error().Err(err).Str("type", ft).Str("factory", fn).Str("instance", pn).
						Msg("destroy plugin failed")
				}
			}
		}
	}
	_pluginMgr.insMap = make(map[string]map[string]map[string]Plugin)
}

func instanceKey(ft, fn, pn string) string {
	return ft + "/" + fn + "/" + pn
}

// getPluginNameFromCfg extracts the instance tag from a section.
func getPluginNameFromCfg(c map[string]any) string {
	t, ok := c["tag"]
	if !ok {
		return DefaultInsName
	}
	tag, ok := t.(string)
	if !ok || tag == "" {
		return DefaultInsName
	}
	return tag
}

func getFactoryName(fn string) string {
	return strings.Split(fn, "_")[0]
}

// GetPlugin retrieves a plugin instance.
// ft: plugin type (e.g., "transport")
// fn: factory name (e.g., "tcp")
// pn: instance name (e.g., "default")
func GetPlugin(ft, fn, pn string) (Plugin, error) {
	_pluginLock.RLock()
	defer _pluginLock.RUnlock()

	typeMap, ok := _pluginMgr.insMap[ft]
	if !ok {
		return nil, fmt.Errorf("plugin type [%s] not registered", ft)
	}

	factoryMap, ok := typeMap[fn]
	if !ok {
		return nil, fmt.Errorf("plugin factory [%s/%s] not found", ft, fn)
	}

	ins, ok := factoryMap[pn]
	if !ok {
		return nil, fmt.Errorf("plugin instance [%s/%s/%s] not found", ft, fn, pn)
	}

	return ins, nil
}

// GetDefaultPlugin retrieves the default instance.
func GetDefaultPlugin(ft, fn string) (Plugin, error) {
	return GetPlugin(ft, fn, DefaultInsName)
}

// MustGetPlugin retrieves a plugin and panics when it is missing.
func MustGetPlugin(ft, fn, pn string) Plugin {
	ins, err := GetPlugin(ft, fn, pn)
	if err != nil {
		log.Fatal().Err(err).Str("type", ft).Str("factory", fn).
			Str("instance", pn).Msg("critical plugin not found")
	}
	return ins
}

// ListPlugins lists all instances as map["transport/tcp"] = ["default"].
func ListPlugins() map[string][]string {
	_pluginLock.RLock()
	defer _pluginLock.RUnlock()

	result := make(map[string][]string)
	for ft, typeMap := range _pluginMgr.insMap {
		for fn, factoryMap := range typeMap {
			key := fmt.Sprintf("%s/%s", ft, fn)
			for pn := range factoryMap {
				result[key] = append(result[key], pn)
			}
			sort.Strings(result[key])
		}
	}
	return result
}

// ListFactories lists the factory names registered for ft.
func ListFactories(ft Type) []string {
	_pluginLock.RLock()
	defer _pluginLock.RUnlock()
	return listFactoriesLocked(string(ft))
}

func listFactoriesLocked(ft string) []string {
	var factories []string
	for key := range _factoryMap {
		if strings.HasPrefix(key, ft+"_") {
			factories = append(factories, strings.TrimPrefix(key, ft+"_"))
		}
	}
	sort.Strings(factories)
	return factories
}

func getFactory(ft Type, fn string) Factory {
	_pluginLock.RLock()
	defer _pluginLock.RUnlock()
	return _factoryMap[fmt.Sprintf("%s_%s", ft, fn)]
}
