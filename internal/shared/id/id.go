// Package id provides ID generation for workspace entities.
//
// IDs are prefixed ULIDs (tab_*, lay_*, sub_*):
//   - Lexicographically sortable by creation time
//   - Prefixes make logs and persisted records readable
//   - Never reused: monotonic entropy keeps IDs unique within a millisecond
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TabID identifies a tab within a user's workspace
type TabID string

// LayoutID identifies a layout
type LayoutID string

// SubComponentID identifies a placement inside a dynamic tab
type SubComponentID string

const (
	TabPrefix          = "tab"
	LayoutPrefix       = "lay"
	SubComponentPrefix = "sub"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by monotonic crypto entropy
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTabID generates a new tab ID
func NewTabID() TabID {
	return TabID(Default().GenerateWithPrefix(TabPrefix))
}

// NewLayoutID generates a new layout ID
func NewLayoutID() LayoutID {
	return LayoutID(Default().GenerateWithPrefix(LayoutPrefix))
}

// NewSubComponentID generates a new sub-component ID
func NewSubComponentID() SubComponentID {
	return SubComponentID(Default().GenerateWithPrefix(SubComponentPrefix))
}

func (id TabID) String() string          { return string(id) }
func (id LayoutID) String() string       { return string(id) }
func (id SubComponentID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID, with or without prefix
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// Parse parses a ULID string, stripping a known prefix
func Parse(id string) (ulid.ULID, error) {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}

// Timestamp extracts the creation time from an ID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
