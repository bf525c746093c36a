package plugin

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/lcx/rift/net"
)

// transportFactory builds RiftTransports on top of one engine kind.
type transportFactory struct {
	name      string
	newEngine func(cfg *net.TransportCfg) net.Engine
}

func init() {
	RegisterPlugin(&transportFactory{
		name:      "tcp",
		newEngine: func(cfg *net.TransportCfg) net.Engine { return net.NewTCPEngine(cfg) },
	})
	RegisterPlugin(&transportFactory{
		name:      "ws",
		newEngine: func(cfg *net.TransportCfg) net.Engine { return net.NewWSEngine(cfg) },
	})
}

func (f *transportFactory) Type() Type {
	return Transport
}

func (f *transportFactory) Name() string {
	return f.name
}

// Setup decodes v over the default TransportCfg and creates a transport.
func (f *transportFactory) Setup(v map[string]any) (Plugin, error) {
	cfg, err := f.decode(v)
	if err != nil {
		return nil, err
	}
	return net.NewRiftTransport(f.newEngine(cfg), cfg)
}

func (f *transportFactory) Destroy(p Plugin, _ any) error {
	t, ok := p.(*net.RiftTransport)
	if !ok {
		return fmt.Errorf("transport factory %s: unexpected plugin %T", f.name, p)
	}
	t.Destroy()
	return nil
}

// Reload applies v to sessions started afterwards.
func (f *transportFactory) Reload(p Plugin, v map[string]any) error {
	t, ok := p.(*net.RiftTransport)
	if !ok {
		return fmt.Errorf("transport factory %s: unexpected plugin %T", f.name, p)
	}
	cfg, err := f.decode(v)
	if err != nil {
		return err
	}
	return t.OnConfigChanged(cfg.GetName(), cfg, t.Config())
}

// CanDelete is false while a server has peers or a client is connected.
func (f *transportFactory) CanDelete(p Plugin) bool {
	t, ok := p.(*net.RiftTransport)
	if !ok {
		return true
	}
	return t.ServerPeerCount() == 0 && !t.IsClientConnected()
}

func (f *transportFactory) decode(v map[string]any) (*net.TransportCfg, error) {
	cfg := net.DefaultTransportCfg()
	cfg.Engine = f.name
	if len(v) == 0 {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("decode %s transport config: %w", f.name, err)
	}
	cfg.Engine = f.name
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s transport config: %w", f.name, err)
	}
	return cfg, nil
}

// Build creates a standalone transport from the factory registered as name.
// The caller owns the result and must Destroy it.
func Build(name string, v map[string]any) (net.Transport, error) {
	f := getFactory(Transport, name)
	if f == nil {
		return nil, fmt.Errorf("%w: [%s/%s], available factories: %v",
			ErrFactoryNotFound, Transport, name, ListFactories(Transport))
	}
	p, err := f.Setup(v)
	if err != nil {
		return nil, err
	}
	t, ok := p.(net.Transport)
	if !ok {
		_ = f.Destroy(p, nil)
		return nil, fmt.Errorf("factory %s built %T, not a transport", name, p)
	}
	return t, nil
}

// GetTransport returns a configured transport instance.
func GetTransport(engine, instance string) (*net.RiftTransport, error) {
	p, err := GetPlugin(string(Transport), engine, instance)
	if err != nil {
		return nil, err
	}
	t, ok := p.(*net.RiftTransport)
	if !ok {
		return nil, fmt.Errorf("plugin [%s/%s/%s] is %T, not a transport", Transport, engine, instance, p)
	}
	return t, nil
}
