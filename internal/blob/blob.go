// Package blob stores uploaded image binaries outside the document store.
package blob

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// Info describes a stored object.
type Info struct {
	Key         string
	Size        int64
	ContentType string
	StoredAt    time.Time
}

// Store is a flat key -> bytes namespace. Put overwrites.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Info, error)
	Get(ctx context.Context, key string) (Info, []byte, error)
	Delete(ctx context.Context, key string) error
}
