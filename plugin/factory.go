package plugin

// Factory builds and manages plugin instances of one kind.
//
// Lifecycle methods:
//   - Setup: create an instance from its configuration section
//   - Destroy: release the instance (listeners, connections, goroutines)
//   - Reload: apply a new configuration section to a live instance
//   - CanDelete: report whether the instance can be torn down right now
//
// Implementations must be safe for concurrent use.
type Factory interface {
	// Type returns the plugin type (e.g., "transport")
	Type() Type

	// Name returns the factory name (e.g., "tcp", "ws")
	Name() string

	// Setup initializes a new plugin instance with the given configuration.
	Setup(v map[string]any) (Plugin, error)

	// Destroy cleans up plugin resources. The second parameter is reserved.
	Destroy(Plugin, any) error

	// Reload hot reloads the plugin with new configuration.
	// An error makes the manager recreate the instance instead.
	Reload(Plugin, map[string]any) error

	// CanDelete returns false while the instance still has live sessions.
	CanDelete(Plugin) bool
}

var (
	// _factoryMap stores all registered plugin factories.
	// Key format: "<plugin_type>_<factory_name>" (e.g., "transport_tcp").
	// Protected by _pluginLock.
	_factoryMap = make(map[string]Factory)
)
