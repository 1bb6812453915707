package persistence

import (
	"attendees/internal/persistence/interfaces"
	"os"
	"path/filepath"
)

// FileBackend keeps the snapshot in a single file. A unit persists one
// snapshot, so name is not part of the path.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) interfaces.BackendInterface {
	return &FileBackend{path: path}
}

// Save writes through a temp file and renames it over the previous snapshot.
func (f *FileBackend) Save(_ string, data []byte) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := f.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, f.path)
}

func (f *FileBackend) Load(_ string) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (f *FileBackend) Close() error { return nil }
