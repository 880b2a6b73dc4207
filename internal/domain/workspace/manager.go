package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/utils"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrManagerClosed is returned once the manager has shut down
var ErrManagerClosed = errors.New("workspace manager closed")

// Factory builds the options of a new session for user
type Factory func(user string) Options

// Manager owns one session per user, created on first use
type Manager struct {
	factory Factory
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]*pendingSession
	closed   bool
}

type pendingSession struct {
	done    chan struct{}
	session *Session
	err     error
}

// NewManager creates a manager
func NewManager(factory Factory, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		factory:  factory,
		log:      log.Named("sessions"),
		metrics:  metrics,
		sessions: make(map[string]*Session),
		pending:  make(map[string]*pendingSession),
	}
}

// Get returns the user's session, bootstrapping it on first use.
// Concurrent first calls for the same user share one bootstrap.
func (m *Manager) Get(ctx context.Context, user string) (*Session, error) {
	if err := utils.ValidateUserID(user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[user]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if p, ok := m.pending[user]; ok {
		m.mu.Unlock()
		select {
		case <-p.done:
			return p.session, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingSession{done: make(chan struct{})}
	m.pending[user] = p
	m.mu.Unlock()

	opts := m.factory(user)
	opts.User = user
	p.session, p.err = New(ctx, opts)

	m.mu.Lock()
	delete(m.pending, user)
	if p.err == nil {
		if m.closed {
			p.err = ErrManagerClosed
		} else {
			m.sessions[user] = p.session
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if p.err != nil && p.session != nil {
		_ = p.session.Close(context.Background())
		p.session = nil
	}
	close(p.done)

	if p.err == nil {
		m.metrics.SetSessionsActive(count)
		m.log.Info("session opened", zap.String("user", user), zap.Int("active", count))
	}
	return p.session, p.err
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(user string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[user]
	return s, ok
}

// Users lists users with an open session
func (m *Manager) Users() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]string, 0, len(m.sessions))
	for user := range m.sessions {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Evict closes and forgets the user's session
func (m *Manager) Evict(ctx context.Context, user string) error {
	m.mu.Lock()
	s, ok := m.sessions[user]
	delete(m.sessions, user)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.metrics.SetSessionsActive(count)
	return s.Close(ctx)
}

// Close closes every session. Errors are aggregated.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for user, s := range sessions {
		wg.Add(1)
		go func(user string, s *Session) {
			defer wg.Done()
			if err := s.Close(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("close session %s: %w", user, err))
				mu.Unlock()
			}
		}(user, s)
	}
	wg.Wait()

	m.metrics.SetSessionsActive(0)
	m.log.Info("all sessions closed", zap.Int("count", len(sessions)), zap.Error(errs))
	return errs
}
