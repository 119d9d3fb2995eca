// Package storage provides object-storage access for source filings, taxonomy
// reference workbooks, prompt documents and validation results.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a container or blob does not exist
var ErrNotFound = eris.New("blob not found")

// BlobInfo describes a listed blob
type BlobInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// Store is the object-store contract used by the pipeline.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the full content of a blob
	Get(ctx context.Context, container, name string) ([]byte, error)
	// Put writes a blob, replacing any existing content
	Put(ctx context.Context, container, name string, data []byte) error
	// List returns the blobs in a container sorted by name
	List(ctx context.Context, container string) ([]BlobInfo, error)
}

// Backend names accepted by New
const (
	BackendMemory     = "memory"
	BackendFilesystem = "fs"
	BackendAzure      = "azure"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	// Root is the base directory for the filesystem backend
	Root string
	// AccountName is the Azure storage account for the azure backend
	AccountName string
}

// New constructs the configured backend
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFilesystem, "":
		if opts.Root == "" {
			return nil, fmt.Errorf("storage root is required for the %q backend", BackendFilesystem)
		}
		return NewFSStore(opts.Root)
	case BackendAzure:
		return NewAzureStore(ctx, opts.AccountName)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// IsNotFound reports whether err means the container or blob is missing
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// ValidateName rejects blob names that would escape their container
func ValidateName(container, name string) error {
	if container == "" || strings.ContainsAny(container, `/\`) || container == "." || container == ".." {
		return eris.Errorf("invalid container name %q", container)
	}
	if name == "" {
		return eris.New("blob name is empty")
	}
	clean := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if clean == "/" || strings.Contains(name, "..") {
		return eris.Errorf("invalid blob name %q", name)
	}
	return nil
}
