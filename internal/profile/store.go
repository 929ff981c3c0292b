package profile

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Bundled carries the profiles.json shipped with the binary.
//
//go:embed profiles.json
var Bundled embed.FS

// SourceFile is the name every bundled profile source must carry.
const SourceFile = "profiles.json"

// Store persists the full profile collection as one JSON blob. Load returns
// nil data when nothing has been stored yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// NopStore keeps nothing.
type NopStore struct{}

func (NopStore) Load(context.Context) ([]byte, error) { return nil, nil }
func (NopStore) Save(context.Context, []byte) error   { return nil }

// FileStore keeps the blob in a JSON file on disk.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return b, nil
}

// Save writes to a temp file next to Path and renames it into place.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", s.Path, err)
	}
	return nil
}

// source is one profiles.json found while loading.
type source struct {
	name string
	data []byte
}

// collect walks fsys for files named profiles.json in lexical order.
func collect(fsys fs.FS) ([]source, error) {
	var out []source
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != SourceFile {
			return nil
		}
		b, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, source{name: path, data: b})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
