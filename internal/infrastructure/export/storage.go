package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage persists exported artifacts by name.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
}

// FileStorage implements Storage on a local directory. Files appear under
// their final name only once fully written.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates basePath if needed.
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

func (fs *FileStorage) Save(ctx context.Context, name string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fs.basePath, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write export data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(fs.basePath, name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move export file into place: %w", err)
	}
	return nil
}

// Path returns where name is stored.
func (fs *FileStorage) Path(name string) string {
	return filepath.Join(fs.basePath, name)
}
