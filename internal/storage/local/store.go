package local

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Store is the durable local tier: one record file per user with a rotated backup
type Store struct {
	dir      string
	log      *logging.Logger
	compress bool

	mu      sync.Mutex // Serialises writes so rotation never interleaves
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Option configures a Store
type Option func(*Store)

// WithCompression writes records zstd-compressed. Reads detect the encoding
// either way.
func WithCompression(enabled bool) Option {
	return func(s *Store) { s.compress = enabled }
}

// WithLogger sets the logger
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore constructs a local tier rooted at dir
func NewStore(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("workspace directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	s := &Store{dir: dir, log: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("state_dir", dir))

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	s.encoder = encoder
	s.decoder = decoder
	return s, nil
}

// Close releases codec resources
func (s *Store) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

// Load reads the primary record. A missing file is a miss; a corrupt file is an error.
func (s *Store) Load(user string) (types.Record, bool, error) {
	return s.load(user, paths.RecordFile(s.dir, user), "primary")
}

// LoadBackup reads the rotated backup record
func (s *Store) LoadBackup(user string) (types.Record, bool, error) {
	return s.load(user, paths.BackupFile(s.dir, user), "backup")
}

func (s *Store) load(user, path, copyName string) (types.Record, bool, error) {
	log := s.log.ForUser(user).With(zap.String("copy", copyName))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("state load miss")
			return types.Record{}, false, nil
		}
		log.Warn("state load failed", zap.Error(err))
		return types.Record{}, false, err
	}

	record, err := s.decode(data)
	if err != nil {
		log.Warn("state load failed", zap.Error(err))
		return types.Record{}, false, err
	}
	log.Debug("state load ok", zap.Int("layouts", len(record.Layouts)))
	return *record, true, nil
}

// Save writes the record atomically, rotating a readable primary into the backup slot
func (s *Store) Save(user string, record types.Record) error {
	log := s.log.ForUser(user)

	data, err := s.encode(&record)
	if err != nil {
		log.Warn("state save failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := paths.RecordFile(s.dir, user)
	tmp, err := os.CreateTemp(s.dir, "workspace-*.tmp")
	if err != nil {
		log.Warn("state save failed", zap.Error(err))
		return err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		log.Warn("state save failed", zap.Error(err))
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		log.Warn("state save failed", zap.Error(err))
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		log.Warn("state save failed", zap.Error(err))
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		cleanup()
		log.Warn("state save failed", zap.Error(err))
		return err
	}

	s.rotate(user, path)

	if err := os.Rename(tmp.Name(), path); err != nil {
		cleanup()
		log.Warn("state save failed", zap.Error(err))
		return err
	}
	log.Debug("state save ok", zap.Int("layouts", len(record.Layouts)), zap.Int("bytes", len(data)))
	return nil
}

// rotate moves the current primary to the backup slot when it still decodes,
// so a corrupt primary never replaces a good backup
func (s *Store) rotate(user, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if _, err := s.decode(data); err != nil {
		s.log.ForUser(user).Warn("skipping backup rotation of unreadable record", zap.Error(err))
		return
	}
	if err := os.Rename(path, paths.BackupFile(s.dir, user)); err != nil {
		s.log.ForUser(user).Warn("backup rotation failed", zap.Error(err))
	}
}

// Delete removes both copies of a user's record
func (s *Store) Delete(user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range []string{paths.RecordFile(s.dir, user), paths.BackupFile(s.dir, user)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Users lists users with a primary record on disk
func (s *Store) Users() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+paths.RecordSuffix))
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(matches))
	for _, m := range matches {
		users = append(users, strings.TrimSuffix(filepath.Base(m), paths.RecordSuffix))
	}
	return users, nil
}

func (s *Store) encode(record *types.Record) ([]byte, error) {
	data, err := types.EncodeRecord(record)
	if err != nil {
		return nil, err
	}
	if !s.compress {
		return data, nil
	}
	return s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (s *Store) decode(data []byte) (*types.Record, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress record: %w", err)
		}
		data = raw
	}
	return types.DecodeRecord(data)
}
