package s3client

import (
	"context"
	"io"
	"time"
)

type ItemMetadata struct {
	Bucket  string
	Key     string
	Size    int64
	ModTime time.Time
}

// Client is the subset of the object store the mirror needs. Implementations
// report unreachable or unauthorized stores as *StoreUnavailableError.
type Client interface {
	// ListObjects calls fn once per result page for every object under prefix.
	ListObjects(ctx context.Context, req *ListObjectsRequest, fn func([]ItemMetadata) error) error
	// GetObject opens a byte stream of the object.
	GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error)
}

// Downloader is implemented by clients that can fetch an object in parallel
// ranges into an io.WriterAt.
type Downloader interface {
	Download(ctx context.Context, req *GetObjectRequest, w io.WriterAt) (int64, error)
}

type ListObjectsRequest struct {
	Bucket string
	Prefix string
}

type GetObjectRequest struct {
	Bucket string
	Key    string
}
