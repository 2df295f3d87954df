package ports

import (
	"context"
	"io"
)

// SourceProvider reads the source assets a video job copies into a worker
// inbox. Implementations: localfs, gdrive, minio.
type SourceProvider interface {
	// Provider is the URI scheme the provider is registered under.
	Provider() string

	// Open returns the content behind key. key is the part of the source
	// reference after "scheme://", or the whole path for local files.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Namer is implemented by providers whose keys are opaque IDs rather than
// paths. Name returns the display file name stored with the object.
type Namer interface {
	Name(ctx context.Context, key string) (string, error)
}
