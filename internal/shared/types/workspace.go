package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TabKind discriminates how a tab hosts its content
type TabKind string

const (
	TabKindDynamic TabKind = "dynamic" // Free-form grid of sub-components
	TabKindStatic  TabKind = "static"  // Fixed single content module
)

// Valid reports whether the kind is known
func (k TabKind) Valid() bool {
	return k == TabKindDynamic || k == TabKindStatic
}

// LinkType identifies where a network-hosted module lives
type LinkType string

const (
	LinkTypeExternal LinkType = "external"
	LinkTypeCluster  LinkType = "cluster"
)

// AuthType selects how requests to a hosted module are authenticated
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthHeader AuthType = "header"
)

// AuthConfig carries credentials for a network-hosted module
type AuthConfig struct {
	Type     AuthType `json:"type" yaml:"type" toml:"type"`
	Token    string   `json:"token,omitempty" yaml:"token" toml:"token"`
	Username string   `json:"username,omitempty" yaml:"username" toml:"username"`
	Password string   `json:"password,omitempty" yaml:"password" toml:"password"`
	Header   string   `json:"header,omitempty" yaml:"header" toml:"header"`
	Value    string   `json:"value,omitempty" yaml:"value" toml:"value"`
}

// HealthCheckConfig drives liveness polling for a network-hosted module
type HealthCheckConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Endpoint string   `json:"endpoint,omitempty" yaml:"endpoint" toml:"endpoint"` // Absolute URL or path relative to the link
	Interval Duration `json:"interval,omitempty" yaml:"interval" toml:"interval"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout" toml:"timeout"`
	Retries  int      `json:"retries,omitempty" yaml:"retries" toml:"retries"`
}

// ComponentLink describes a module hosted as an external network service
type ComponentLink struct {
	Type         LinkType           `json:"type" yaml:"type" toml:"type"`
	Endpoint     string             `json:"endpoint,omitempty" yaml:"endpoint" toml:"endpoint"`
	Path         string             `json:"path,omitempty" yaml:"path" toml:"path"`
	Namespace    string             `json:"namespace,omitempty" yaml:"namespace" toml:"namespace"`
	Service      string             `json:"service,omitempty" yaml:"service" toml:"service"`
	Port         int                `json:"port,omitempty" yaml:"port" toml:"port"`
	Capabilities []string           `json:"capabilities,omitempty" yaml:"capabilities" toml:"capabilities"`
	Auth         *AuthConfig        `json:"auth,omitempty" yaml:"auth" toml:"auth"`
	HealthCheck  *HealthCheckConfig `json:"health_check,omitempty" yaml:"health_check" toml:"health_check"`
}

// BaseURL returns the root address of the linked service
func (l *ComponentLink) BaseURL() string {
	if l.Endpoint != "" {
		return strings.TrimRight(l.Endpoint, "/")
	}
	if l.Service == "" {
		return ""
	}
	namespace := l.Namespace
	if namespace == "" {
		namespace = "default"
	}
	port := l.Port
	if port == 0 {
		port = 80
	}
	return fmt.Sprintf("http://%s.%s.svc.cluster.local:%d", l.Service, namespace, port)
}

// URL returns the address the module frame points at
func (l *ComponentLink) URL() string {
	base := l.BaseURL()
	if l.Path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(l.Path, "/")
}

// HealthURL returns the liveness endpoint for the link
func (l *ComponentLink) HealthURL() string {
	if l.HealthCheck == nil || l.HealthCheck.Endpoint == "" {
		return l.BaseURL() + "/health"
	}
	ep := l.HealthCheck.Endpoint
	if strings.HasPrefix(ep, "http://") || strings.HasPrefix(ep, "https://") {
		return ep
	}
	return l.BaseURL() + "/" + strings.TrimLeft(ep, "/")
}

// ModuleRef names the content hosted by a tab: a registry id or a component link
type ModuleRef struct {
	Registry string         `json:"registry,omitempty"`
	Link     *ComponentLink `json:"link,omitempty"`
}

// IsLocal reports whether the reference names a registry module
func (r ModuleRef) IsLocal() bool {
	return r.Link == nil
}

// Key returns a stable identity used to detect reference changes
func (r ModuleRef) Key() string {
	if r.Link == nil {
		return "registry:" + r.Registry
	}
	data, _ := codec.Marshal(r.Link)
	return "link:" + string(data)
}

// Validate checks that exactly one target is set
func (r ModuleRef) Validate() error {
	switch {
	case r.Link == nil && r.Registry == "":
		return fmt.Errorf("module reference is empty")
	case r.Link != nil && r.Registry != "":
		return fmt.Errorf("module reference names both a registry id and a link")
	case r.Link != nil && r.Link.BaseURL() == "":
		return fmt.Errorf("component link has no endpoint or service")
	}
	return nil
}

// Rect is a grid rectangle in layout units
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// SubComponent is one placement inside a dynamic tab's grid
type SubComponent struct {
	ID    string                 `json:"id"`
	Type  string                 `json:"type"`
	Rect  Rect                   `json:"rect"`
	Props map[string]interface{} `json:"props,omitempty"`
}

// Tab is one hosted slot in a layout
type Tab struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	ModuleRef     ModuleRef       `json:"module_ref"`
	Kind          TabKind         `json:"kind"`
	Closable      bool            `json:"closable"`
	GridLayout    json.RawMessage `json:"grid_layout,omitempty"`
	EditMode      bool            `json:"edit_mode"`
	SubComponents []SubComponent  `json:"sub_components,omitempty"`
}

// Layout is a named, ordered collection of tabs
type Layout struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	Tabs      []Tab     `json:"tabs"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TabIndex returns the position of a tab or -1
func (l *Layout) TabIndex(id string) int {
	for i := range l.Tabs {
		if l.Tabs[i].ID == id {
			return i
		}
	}
	return -1
}

// HasTab reports whether the layout contains the tab
func (l *Layout) HasTab(id string) bool {
	return l.TabIndex(id) >= 0
}

// FirstTabID returns the id of the first tab, or "" for an empty layout
func (l *Layout) FirstTabID() string {
	if len(l.Tabs) == 0 {
		return ""
	}
	return l.Tabs[0].ID
}

// Record is the durable per-user workspace record shared by the local and remote tiers
type Record struct {
	Layouts         []Layout  `json:"layouts"`
	ActiveLayoutID  string    `json:"active_layout_id"`
	DefaultLayoutID string    `json:"default_layout_id"`
	Current         *Layout   `json:"current,omitempty"` // Working copy of the active layout
	SavedAt         time.Time `json:"saved_at"`
}

// Layout finds a layout by id
func (r *Record) Layout(id string) (*Layout, bool) {
	for i := range r.Layouts {
		if r.Layouts[i].ID == id {
			return &r.Layouts[i], true
		}
	}
	return nil, false
}

// Empty reports whether the record holds no layouts
func (r *Record) Empty() bool {
	return len(r.Layouts) == 0 && r.Current == nil
}

// SyncState describes the reachability of the remote tier
type SyncState struct {
	RemoteEnabled   bool       `json:"remote_enabled"`
	RemoteReachable bool       `json:"remote_reachable"`
	WriteInFlight   bool       `json:"write_in_flight"`
	LastFlush       *time.Time `json:"last_flush,omitempty"`
	LastRemoteSync  *time.Time `json:"last_remote_sync,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}
