package storageprovider

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/multios/introspect/internal/storageutil"
)

// Gcs implements storageutil.ObjectHandler on a GCS bucket, the archive
// store in production.
type Gcs struct {
	BucketHandle *storage.BucketHandle
}

// Put opens a writer for the object at name.
func (g *Gcs) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return g.BucketHandle.Object(name).NewWriter(ctx), nil
}

// Get opens the object at name. A missing object maps to
// storageutil.ErrObjectNotFound.
func (g *Gcs) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	rc, err := g.BucketHandle.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return rc, nil
}
