package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Subdirectories under the data root
const (
	WorkspacesDir = "workspaces"
	StoreDir      = "store"
	ModulesDir    = "modules"
)

// File names and suffixes
const (
	RecordSuffix = ".workspace"
	BackupSuffix = ".bak"
	StoreDBName  = "layouts.db"
)

// Root is the on-disk layout rooted at a data directory
type Root struct {
	Dir string
}

// New returns the layout for a data directory
func New(dir string) Root {
	return Root{Dir: dir}
}

// Workspaces returns the directory of the durable local tier
func (r Root) Workspaces() string {
	return filepath.Join(r.Dir, WorkspacesDir)
}

// StoreDB returns the path of the remote store's SQLite database
func (r Root) StoreDB() string {
	return filepath.Join(r.Dir, StoreDir, StoreDBName)
}

// Modules returns the directory scanned for module manifests
func (r Root) Modules() string {
	return filepath.Join(r.Dir, ModulesDir)
}

// StandardDirectories returns all directories that should exist
func (r Root) StandardDirectories() []string {
	return []string{
		r.Workspaces(),
		filepath.Join(r.Dir, StoreDir),
		r.Modules(),
	}
}

// Ensure creates the standard directories
func (r Root) Ensure() error {
	for _, dir := range r.StandardDirectories() {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// RecordFile returns the primary record path for a user inside dir
func RecordFile(dir, user string) string {
	return filepath.Join(dir, FileName(user)+RecordSuffix)
}

// BackupFile returns the rotated backup path for a user inside dir
func BackupFile(dir, user string) string {
	return RecordFile(dir, user) + BackupSuffix
}

// FileName maps an opaque user id to a safe file name
func FileName(user string) string {
	var b strings.Builder
	for _, r := range user {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "unknown"
	}
	return name
}

// IsWithin reports whether path resolves inside root
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
