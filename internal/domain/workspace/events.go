package workspace

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/loader"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"go.uber.org/zap"
)

// EventType identifies the event payload
type EventType string

const (
	// EventLayout carries a Layout Store change
	EventLayout EventType = "layout"
	// EventResolution carries a module resolution transition
	EventResolution EventType = "resolution"
	// EventSync carries a remote sync status change
	EventSync EventType = "sync"
)

// Event is a subscriber-facing notification
type Event struct {
	Type       EventType          `json:"type"`
	Change     *layout.Change     `json:"change,omitempty"`
	Resolution *loader.Resolution `json:"resolution,omitempty"`
	Sync       *types.SyncState   `json:"sync,omitempty"`
	At         time.Time          `json:"at"`
}

// bus fans events out to subscribers. Publishing never blocks; a full
// subscriber buffer drops the event for that subscriber.
type bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	depth  int
	closed bool
	log    *logging.Logger
}

func newBus(depth int, log *logging.Logger) *bus {
	if depth <= 0 {
		depth = 256
	}
	return &bus{subs: make(map[chan Event]struct{}), depth: depth, log: log}
}

func (b *bus) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.depth)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", zap.Int("subs", count))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

func (b *bus) publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.Debug("eventbus dropped", zap.Int("count", dropped), zap.String("type", string(event.Type)))
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub)
		delete(b.subs, sub)
	}
}
