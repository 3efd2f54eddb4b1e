// Package terminal keeps the environment injected into terminals and child
// processes in sync with the IPC server.
package terminal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/autodebug/autodebug/internal/config"
	"github.com/autodebug/autodebug/internal/logger"
)

// EnvironmentProvider contributes variables to spawned terminals
type EnvironmentProvider interface {
	GetTerminalEnv() map[string]string
}

// Collection is the managed set of variables applied to new terminals
type Collection struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{vars: make(map[string]string)}
}

// Replace sets name to value, overwriting any inherited value
func (c *Collection) Replace(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

// Get returns the value of name and whether it is set
func (c *Collection) Get(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[name]
	return v, ok
}

// Clear removes every variable
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars = make(map[string]string)
}

// Len returns the number of variables
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vars)
}

// Snapshot returns a copy of the variables
func (c *Collection) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Environ merges the collection over base, a list of KEY=VALUE entries as
// returned by os.Environ. Replaced keys keep no inherited value.
func (c *Collection) Environ(base []string) []string {
	snap := c.Snapshot()

	out := make([]string, 0, len(base)+len(snap))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := snap[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+snap[k])
	}
	return out
}

// Manager rebuilds the Collection from its providers on every refresh
type Manager struct {
	mu         sync.Mutex
	collection *Collection
	providers  []EnvironmentProvider
	enabled    bool
	logger     *logger.Logger
}

// NewManager creates a manager over collection
func NewManager(collection *Collection, enabled bool, log *logger.Logger) *Manager {
	if collection == nil {
		collection = NewCollection()
	}
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		collection: collection,
		enabled:    enabled,
		logger:     log.With("component", "terminal_env"),
	}
}

// Collection returns the managed collection
func (m *Manager) Collection() *Collection {
	return m.collection
}

// AddProvider registers p. Call Refresh to apply it.
func (m *Manager) AddProvider(p EnvironmentProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, p)
}

// SetEnabled toggles whether providers contribute on the next refresh
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Refresh clears the collection and, when enabled, reapplies every provider
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collection.Clear()
	if !m.enabled {
		m.logger.Debug("terminal environment cleared", "enabled", false)
		return
	}

	for _, p := range m.providers {
		for name, value := range p.GetTerminalEnv() {
			m.collection.Replace(name, value)
		}
	}
	m.logger.Debug("terminal environment refreshed", "vars", m.collection.Len())
}

// OnConfigReload is a config.ReloadCallback that follows the IPC enable flag
func (m *Manager) OnConfigReload(_ context.Context, cfg *config.Config) error {
	m.SetEnabled(cfg.IPC.Enabled)
	m.Refresh()
	return nil
}
