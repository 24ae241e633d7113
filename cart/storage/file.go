package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

// FileStorage keeps one JSON file per slot under dir.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating cart directory=%s with error=%w", dir, err)
	}
	return &FileStorage{dir: dir}, nil
}

func (f *FileStorage) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

func (f *FileStorage) Get(_ context.Context, key string) ([]byte, error) {
	value, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, inErrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed reading key=%s with error=%w", key, err)
	}
	return value, nil
}

func (f *FileStorage) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(f.dir, "slot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed creating temp file with error=%w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed writing key=%s with error=%w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed closing key=%s with error=%w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("failed replacing key=%s with error=%w", key, err)
	}
	return nil
}
