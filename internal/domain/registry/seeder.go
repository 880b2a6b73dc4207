package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const (
	manifestPattern = "**/*.{yaml,yml,toml}"
	manifestFile    = "*.{yaml,yml,toml}"
	reloadDelay     = 100 * time.Millisecond
)

// Manifest bodies may carry basic formatting
var bodyPolicy = bluemonday.UGCPolicy()

// Manifest is a file of static-content module declarations
type Manifest struct {
	Modules []ManifestModule `yaml:"modules" toml:"modules"`
}

// ManifestModule declares one static-content module
type ManifestModule struct {
	ID          string `yaml:"id" toml:"id"`
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	Category    string `yaml:"category" toml:"category"`
	Title       string `yaml:"title" toml:"title"`
	Body        string `yaml:"body" toml:"body"`
}

// SeedResult counts the outcome of a seeding pass
type SeedResult struct {
	Loaded  int
	Skipped int
	Failed  int
}

// Seeder registers modules declared in manifest files
type Seeder struct {
	manager *Manager
	dir     string
	log     *logging.Logger
}

// NewSeeder creates a seeder over dir
func NewSeeder(manager *Manager, dir string, log *logging.Logger) *Seeder {
	if log == nil {
		log = logging.NewNop()
	}
	return &Seeder{manager: manager, dir: dir, log: log.Named("seeder")}
}

// Seed registers every manifest module under the directory. A missing
// directory is not an error.
func (s *Seeder) Seed() (SeedResult, error) {
	var result SeedResult

	if _, err := os.Stat(s.dir); errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("modules directory not found", zap.String("dir", s.dir))
		return result, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.dir), manifestPattern)
	if err != nil {
		return result, fmt.Errorf("failed to scan %s: %w", s.dir, err)
	}

	for _, rel := range matches {
		r := s.loadFile(filepath.Join(s.dir, filepath.FromSlash(rel)))
		result.Loaded += r.Loaded
		result.Skipped += r.Skipped
		result.Failed += r.Failed
	}

	s.log.Info("seeding complete",
		zap.Int("loaded", result.Loaded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Seeder) loadFile(path string) SeedResult {
	var result SeedResult

	manifest, err := ParseManifest(path)
	if err != nil {
		s.log.Warn("failed to parse manifest", zap.String("path", path), zap.Error(err))
		result.Failed++
		return result
	}

	for _, mod := range manifest.Modules {
		err := s.manager.Register(mod.ID, mod.Name, static(mod.module()),
			WithSource(SourceManifest),
			WithDescription(mod.Description),
			WithCategory(mod.Category))
		switch {
		case err == nil:
			result.Loaded++
		case errors.Is(err, ErrAlreadyRegistered):
			result.Skipped++
		default:
			s.log.Warn("failed to register manifest module",
				zap.String("path", path), zap.String("module", mod.ID), zap.Error(err))
			result.Failed++
		}
	}
	return result
}

func (mod ManifestModule) module() StaticModule {
	title := mod.Title
	if title == "" {
		title = mod.Name
	}
	return StaticModule{ID: mod.ID, Title: title, Body: bodyPolicy.Sanitize(mod.Body)}
}

// ParseManifest decodes a YAML or TOML manifest by extension
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &manifest)
	case ".toml":
		err = toml.Unmarshal(data, &manifest)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", filepath.Base(path), err)
	}
	return &manifest, nil
}

// Watch registers manifests created or modified under the directory until
// ctx ends. Already registered ids are left untouched.
func (s *Seeder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok && t.Stop() {
			t.Reset(reloadDelay)
			return
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(reloadDelay, func() {
			defer wg.Done()
			mu.Lock()
			if timers[path] == t {
				delete(timers, path)
			}
			mu.Unlock()

			r := s.loadFile(path)
			s.log.Info("manifest reloaded", zap.String("path", path), zap.Int("loaded", r.Loaded))
		})
		timers[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := watcher.Add(event.Name); err != nil {
					s.log.Warn("failed to watch directory", zap.String("dir", event.Name), zap.Error(err))
				}
				continue
			}
			if match, _ := doublestar.Match(manifestFile, filepath.Base(event.Name)); match {
				schedule(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("manifest watcher error", zap.Error(err))
		}
	}
}
