package blobstore

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by Get when no blob exists at the path
// (or it expired).
var ErrBlobNotFound = errors.New("blob not found")

// PutResult describes a stored blob.
type PutResult struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Store persists generated report files and serves downloads without
// re-running generation. It is the single source of truth for report bytes;
// there is no process-local file cache.
type Store interface {
	// Put stores data under a path derived from suggestedName.
	Put(ctx context.Context, data []byte, suggestedName string) (*PutResult, error)

	// Get returns the bytes stored at path, or ErrBlobNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
}
