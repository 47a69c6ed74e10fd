package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/hierroutes/internal/hierarchy"
)

// LoadMenus reads the named menus from a menu definition file of the form
//
//	main:
//	  - label: About
//	    path: pages/about
//	    submenu:
//	      - path: pages/team
//
// Menus are returned in the order of names; unknown names are logged and
// skipped.
func LoadMenus(path string, names []string, logger *zap.Logger) ([]hierarchy.Menu, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}
	return ParseMenus(data, names, logger)
}

// ParseMenus decodes menu definitions from YAML
func ParseMenus(data []byte, names []string, logger *zap.Logger) ([]hierarchy.Menu, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var all map[string][]hierarchy.MenuItem
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse menu file: %w", err)
	}

	menus := make([]hierarchy.Menu, 0, len(names))
	for _, name := range names {
		items, ok := all[name]
		if !ok {
			logger.Warn("menu not defined", zap.String("menu", name))
			continue
		}
		menus = append(menus, hierarchy.Menu{Name: name, Items: items})
	}
	return menus, nil
}
