package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// codec is std-compatible so persisted records stay readable by any JSON decoder
var codec = sonic.ConfigStd

// Duration is a time.Duration that serialises as a Go duration string ("5s")
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText accepts duration strings and bare millisecond counts
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// EncodeRecord serialises a workspace record
func EncodeRecord(r *Record) ([]byte, error) {
	data, err := codec.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a workspace record
func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &r, nil
}

// EncodeLayout serialises a single layout
func EncodeLayout(l *Layout) ([]byte, error) {
	data, err := codec.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal layout: %w", err)
	}
	return data, nil
}

// DecodeLayout parses a single layout
func DecodeLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := codec.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
	}
	if l.ID == "" {
		return nil, fmt.Errorf("layout has empty ID field")
	}
	return &l, nil
}

// Clone returns a deep copy of the link
func (l *ComponentLink) Clone() *ComponentLink {
	if l == nil {
		return nil
	}
	c := *l
	if l.Capabilities != nil {
		c.Capabilities = append([]string(nil), l.Capabilities...)
	}
	if l.Auth != nil {
		auth := *l.Auth
		c.Auth = &auth
	}
	if l.HealthCheck != nil {
		hc := *l.HealthCheck
		c.HealthCheck = &hc
	}
	return &c
}

// Clone returns a deep copy of the reference
func (r ModuleRef) Clone() ModuleRef {
	return ModuleRef{Registry: r.Registry, Link: r.Link.Clone()}
}

// Clone returns a deep copy of the sub-component
func (s SubComponent) Clone() SubComponent {
	c := s
	if s.Props != nil {
		c.Props = cloneMap(s.Props)
	}
	return c
}

// Clone returns a deep copy of the tab
func (t Tab) Clone() Tab {
	c := t
	c.ModuleRef = t.ModuleRef.Clone()
	if t.GridLayout != nil {
		c.GridLayout = append([]byte(nil), t.GridLayout...)
	}
	if t.SubComponents != nil {
		c.SubComponents = make([]SubComponent, len(t.SubComponents))
		for i, sc := range t.SubComponents {
			c.SubComponents[i] = sc.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the layout
func (l Layout) Clone() Layout {
	c := l
	c.Tabs = make([]Tab, len(l.Tabs))
	for i, t := range l.Tabs {
		c.Tabs[i] = t.Clone()
	}
	return c
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	c := r
	c.Layouts = make([]Layout, len(r.Layouts))
	for i, l := range r.Layouts {
		c.Layouts[i] = l.Clone()
	}
	if r.Current != nil {
		cur := r.Current.Clone()
		c.Current = &cur
	}
	return c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
