package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// FileSystemArchive stores archived versions as YAML files:
//
//	<root>/
//	  <owner type>/
//	    <owner id>/
//	      <number>.yaml
type FileSystemArchive struct {
	root string
}

var _ versioning.Archive = (*FileSystemArchive)(nil)

// NewFileSystemArchive creates an archive rooted at root, creating it if needed.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

// Put writes v atomically. Archiving the same version twice is safe.
func (a *FileSystemArchive) Put(ctx context.Context, v *versioning.Version) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	destPath := filepath.Join(a.root, filepath.FromSlash(objectName(v.Owner, v.Number)))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	return writeFileAtomic(destPath, data)
}

func (a *FileSystemArchive) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	srcPath := filepath.Join(a.root, filepath.FromSlash(objectName(owner, number)))
	data, err := os.ReadFile(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, versioning.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to read archived version: %w", err)
	}
	return decodeRecord(data)
}

// writeFileAtomic writes data to a temp file in the destination directory
// and renames it into place.
func writeFileAtomic(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
