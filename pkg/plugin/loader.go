package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// Loader resolves plugin binaries into Plugin implementations.
type Loader interface {
	Load(path string) (Plugin, error)
}

// GoPluginLoader opens shared objects built with -buildmode=plugin. The object
// must export either a Plugin value or a NewPlugin constructor.
type GoPluginLoader struct{}

// Load implements Loader.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}

	if symbol, err := so.Lookup("NewPlugin"); err == nil {
		switch ctor := symbol.(type) {
		case func() Plugin:
			return ctor(), nil
		case func() (Plugin, error):
			return ctor()
		default:
			return nil, fmt.Errorf("%s: NewPlugin has unsupported signature %T", path, symbol)
		}
	}

	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, fmt.Errorf("%s exports neither NewPlugin nor Plugin: %w", path, err)
	}
	switch p := symbol.(type) {
	case Plugin:
		return p, nil
	case *Plugin:
		if p == nil || *p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	default:
		return nil, fmt.Errorf("%s: Plugin symbol %T does not implement plugin.Plugin", path, symbol)
	}
}
