// Package registry maps action kinds to the handlers that perform them.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"sync"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/protocol"
)

var ErrInvalidPlugin = errors.New("invalid action plugin")

// ActionInfo describes a registered action kind.
type ActionInfo struct {
	Kind        models.ActionKind `json:"kind"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      map[string]any    `json:"schema,omitempty"`
}

type entry struct {
	handler protocol.ActionHandler
	info    ActionInfo
}

type Registry struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	actions map[models.ActionKind]entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:  log.With("module", "registry"),
		actions: make(map[models.ActionKind]entry),
	}
}

// Register binds kind to handler, replacing any previous binding.
func (r *Registry) Register(kind models.ActionKind, handler protocol.ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[kind] = entry{handler: handler, info: ActionInfo{Kind: kind, Name: string(kind)}}
}

// RegisterPlugin binds a self describing handler under its own kind.
func (r *Registry) RegisterPlugin(action protocol.ActionPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[action.Kind()] = entry{
		handler: action,
		info: ActionInfo{
			Kind:        action.Kind(),
			Name:        action.Name(),
			Description: action.Description(),
			Schema:      action.Schema(),
		},
	}
}

// Resolve returns the handler for kind.
func (r *Registry) Resolve(kind models.ActionKind) (protocol.ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.actions[kind]

	return e.handler, ok
}

// Kinds returns every registered kind in lexical order.
func (r *Registry) Kinds() []models.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.ActionKind, 0, len(r.actions))
	for kind := range r.actions {
		kinds = append(kinds, kind)
	}

	slices.Sort(kinds)

	return kinds
}

// Describe lists the metadata of every registered kind in lexical order.
func (r *Registry) Describe() []ActionInfo {
	kinds := r.Kinds()

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(kinds))
	for _, kind := range kinds {
		infos = append(infos, r.actions[kind].info)
	}

	return infos
}

// LoadActionPlugins opens every shared object under <pluginsPath>/actions and
// registers the protocol.ActionPlugin each one exports as the "Action" symbol.
func (r *Registry) LoadActionPlugins(pluginsPath string) ([]protocol.ActionPlugin, error) {
	loaded, err := loadPlugin[protocol.ActionPlugin](r.logger, pluginsPath, "Action")
	if err != nil {
		return nil, err
	}

	for _, action := range loaded {
		r.RegisterPlugin(action)
	}

	return loaded, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, "actions")

	_, err := os.Stat(rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins in %s: %w", rootPath, err)
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup %s in plugin %s: %w", symbolName, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			// exported variables are looked up as pointers
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("%w: %s does not export %s", ErrInvalidPlugin, p, symbolName)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded action plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
