package storage

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage is the blob store holding uploaded document files. Document rows
// reference blobs by the opaque path returned from DocumentPath.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	// Usage reports capacity of the underlying store. Stores without a
	// meaningful capacity (object stores) return TotalBytes == 0.
	Usage() (UsageStats, error)

	Location() string
}

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

func DocumentPath(documentId uuid.UUID) string {
	return filepath.Join("documents", documentId.String())
}
