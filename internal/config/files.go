package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/service"
)

// FileDefinitions reads menus and rules from disk on every build and reports
// the files' modification times for cache staleness
type FileDefinitions struct {
	ConfigPath string
	MenuPath   string
	logger     *zap.Logger
}

// NewFileDefinitions creates FileDefinitions. configPath may be empty when
// the configuration was found by search or not at all.
func NewFileDefinitions(configPath, menuPath string, logger *zap.Logger) *FileDefinitions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileDefinitions{
		ConfigPath: configPath,
		MenuPath:   menuPath,
		logger:     logger.Named("config"),
	}
}

// Menus implements service.Definitions
func (d *FileDefinitions) Menus(ctx context.Context) ([]hierarchy.Menu, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := Load(d.ConfigPath, d.logger)
	if err != nil {
		return nil, err
	}
	return LoadMenus(d.MenuPath, cfg.Menus, d.logger)
}

// Rules implements service.Definitions
func (d *FileDefinitions) Rules(ctx context.Context) ([]hierarchy.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, err := Load(d.ConfigPath, d.logger)
	if err != nil {
		return nil, err
	}
	return cfg.Rules, nil
}

// Settings implements service.SettingsSource, so edits to the settings
// section apply to the next rebuild like edits to menus and rules
func (d *FileDefinitions) Settings(ctx context.Context) (service.Settings, error) {
	if err := ctx.Err(); err != nil {
		return service.Settings{}, err
	}
	cfg, err := Load(d.ConfigPath, d.logger)
	if err != nil {
		return service.Settings{}, err
	}
	return service.Settings{Builder: cfg.BuilderOptions(), Links: cfg.LinkOptions()}, nil
}

// MenuModTime implements service.Sources
func (d *FileDefinitions) MenuModTime() (time.Time, error) {
	return modTime(d.MenuPath)
}

// ConfigModTime implements service.Sources
func (d *FileDefinitions) ConfigModTime() (time.Time, error) {
	return modTime(d.ConfigPath)
}

// modTime returns the zero time for an unset or missing file
func modTime(path string) (time.Time, error) {
	if path == "" {
		return time.Time{}, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
