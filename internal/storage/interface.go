package storage

import (
	"context"
	"io"
)

// Storage holds uploaded timing files between the API accepting an upload
// and the import worker processing it.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
