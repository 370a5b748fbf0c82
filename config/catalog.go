// persona 目录：运行之间可整体替换的只读 persona 表。
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/roundtable/types"
)

// personaFile 是 persona 目录文件的结构，与主配置文件的 personas 段兼容
type personaFile struct {
	Personas []types.Persona `yaml:"personas"`
}

// Catalog is a concurrency-safe persona table.
// Reloads swap the whole table at once; a run keeps the personas it resolved at start.
type Catalog struct {
	personas atomic.Pointer[map[string]types.Persona]
	logger   *zap.Logger
}

// NewCatalog builds a catalog from an initial persona list.
func NewCatalog(personas []types.Persona, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{logger: logger.With(zap.String("component", "persona_catalog"))}
	if err := c.Replace(personas); err != nil {
		return nil, err
	}
	return c, nil
}

// Persona resolves a persona id.
func (c *Catalog) Persona(id string) (types.Persona, bool) {
	m := c.personas.Load()
	if m == nil {
		return types.Persona{}, false
	}
	p, ok := (*m)[id]
	return p, ok
}

// List returns every persona sorted by id.
func (c *Catalog) List() []types.Persona {
	m := c.personas.Load()
	if m == nil {
		return nil
	}
	out := make([]types.Persona, 0, len(*m))
	for _, p := range *m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of personas.
func (c *Catalog) Len() int {
	m := c.personas.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Replace validates and installs a new persona list.
// An invalid list leaves the current table untouched.
func (c *Catalog) Replace(personas []types.Persona) error {
	next := make(map[string]types.Persona, len(personas))
	for _, p := range personas {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := next[p.ID]; dup {
			return fmt.Errorf("persona %s defined twice", p.ID)
		}
		next[p.ID] = p
	}
	c.personas.Store(&next)
	return nil
}

// LoadFile replaces the table with the personas listed in a YAML file.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read persona file: %w", err)
	}
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse persona file: %w", err)
	}
	if err := c.Replace(f.Personas); err != nil {
		return err
	}
	c.logger.Info("persona catalog loaded",
		zap.String("path", path),
		zap.Int("personas", len(f.Personas)))
	return nil
}

// Watch reloads the catalog whenever path changes, until ctx is done.
// Failed reloads are logged and keep the previous table.
func (c *Catalog) Watch(ctx context.Context, path string, opts ...WatcherOption) (*FileWatcher, error) {
	opts = append([]WatcherOption{WithWatcherLogger(c.logger)}, opts...)
	w, err := NewFileWatcher([]string{path}, opts...)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			c.logger.Warn("persona file removed, keeping current catalog", zap.String("path", evt.Path))
			return
		}
		if err := c.LoadFile(evt.Path); err != nil {
			c.logger.Error("persona catalog reload failed", zap.String("path", evt.Path), zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
