package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/utils"
	"go.uber.org/zap"
)

// MaxModules bounds the catalogue size
const MaxModules = 1000

var (
	ErrNotRegistered     = errors.New("module not registered")
	ErrAlreadyRegistered = errors.New("module already registered")
	ErrRegistryFull      = errors.New("module registry is full")
)

// RenderRequest carries the hosting tab into a module render
type RenderRequest struct {
	TabID string
	Tab   types.Tab
}

// Module is a loaded local content module
type Module interface {
	Render(ctx context.Context, req RenderRequest) (*types.View, error)
}

// ModuleFunc adapts a function to Module
type ModuleFunc func(ctx context.Context, req RenderRequest) (*types.View, error)

// Render calls f
func (f ModuleFunc) Render(ctx context.Context, req RenderRequest) (*types.View, error) {
	return f(ctx, req)
}

// Loader fetches a module implementation
type Loader func(ctx context.Context) (Module, error)

// Source records who registered a module
type Source string

const (
	SourceBuiltin  Source = "builtin"
	SourceManifest Source = "manifest"
	SourceHost     Source = "host"
)

// Metadata describes a registered module
type Metadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	Source       Source    `json:"source"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Entry is a catalogue row
type Entry struct {
	Metadata
	Loader Loader
}

// Option sets optional metadata on Register
type Option func(*Metadata)

// WithDescription sets the module description
func WithDescription(desc string) Option {
	return func(m *Metadata) { m.Description = desc }
}

// WithCategory sets the module category
func WithCategory(category string) Option {
	return func(m *Metadata) { m.Category = category }
}

// WithSource overrides the registering source
func WithSource(source Source) Option {
	return func(m *Metadata) { m.Source = source }
}

// Stats summarises the catalogue
type Stats struct {
	Total          int            `json:"total"`
	BySource       map[Source]int `json:"by_source"`
	Categories     map[string]int `json:"categories"`
	LastRegistered *time.Time     `json:"last_registered,omitempty"`
}

// Manager is the module catalogue. It holds no per-tab state.
type Manager struct {
	modules sync.Map // id -> *Entry
	count   int64
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the logger
func WithLogger(log *logging.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *monitoring.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates an empty registry
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{log: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("registry")
	return m
}

// Register adds a module. Duplicate ids are rejected with ErrAlreadyRegistered.
func (m *Manager) Register(id, name string, loader Loader, opts ...Option) error {
	if err := utils.ValidateID(id, "module id", true); err != nil {
		return err
	}
	cleanName, err := utils.ValidateName(name, "module name")
	if err != nil {
		return err
	}
	if loader == nil {
		return fmt.Errorf("module %s: loader is required", id)
	}
	if atomic.LoadInt64(&m.count) >= MaxModules {
		return ErrRegistryFull
	}

	entry := &Entry{
		Metadata: Metadata{ID: id, Name: cleanName, Source: SourceHost, RegisteredAt: time.Now()},
		Loader:   loader,
	}
	for _, opt := range opts {
		opt(&entry.Metadata)
	}

	if _, loaded := m.modules.LoadOrStore(id, entry); loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	total := atomic.AddInt64(&m.count, 1)
	m.metrics.SetRegistryModules(int(total))
	m.log.Debug("module registered", zap.String("module", id), zap.String("source", string(entry.Source)))
	return nil
}

// Unregister removes a module
func (m *Manager) Unregister(id string) bool {
	if _, existed := m.modules.LoadAndDelete(id); !existed {
		return false
	}
	total := atomic.AddInt64(&m.count, -1)
	m.metrics.SetRegistryModules(int(total))
	return true
}

// IsRegistered reports whether id is in the catalogue
func (m *Manager) IsRegistered(id string) bool {
	_, ok := m.modules.Load(id)
	return ok
}

// Lookup returns the catalogue entry for id
func (m *Manager) Lookup(id string) (Entry, bool) {
	v, ok := m.modules.Load(id)
	if !ok {
		return Entry{}, false
	}
	return *v.(*Entry), true
}

// List returns the metadata of every module, sorted by id
func (m *Manager) List() []Metadata {
	var out []Metadata
	m.modules.Range(func(_, value interface{}) bool {
		out = append(out, value.(*Entry).Metadata)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Load runs the module's loader
func (m *Manager) Load(ctx context.Context, id string) (Module, error) {
	entry, ok := m.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	mod, err := entry.Loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	if mod == nil {
		return nil, fmt.Errorf("load %s: loader returned no module", id)
	}
	return mod, nil
}

// Stats returns catalogue statistics
func (m *Manager) Stats() Stats {
	stats := Stats{BySource: make(map[Source]int), Categories: make(map[string]int)}

	m.modules.Range(func(_, value interface{}) bool {
		meta := value.(*Entry).Metadata
		stats.Total++
		stats.BySource[meta.Source]++
		if meta.Category != "" {
			stats.Categories[meta.Category]++
		}
		if stats.LastRegistered == nil || meta.RegisteredAt.After(*stats.LastRegistered) {
			at := meta.RegisteredAt
			stats.LastRegistered = &at
		}
		return true
	})
	return stats
}
