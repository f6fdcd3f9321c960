// Package inventory enumerates the remote objects under a set of listing
// prefixes.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
	"github.com/yuya-takeyama/goes-mirror/pkg/logger"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

// Object is one listed remote object.
type Object struct {
	Bucket string
	Key    string
	Size   int64
}

// Path returns the bucket qualified key, e.g.
// noaa-goes16/ABI-L1b-RadF/2020/103/00/OR_ABI-L1b-RadF-M6C09_G16_s20201030000.nc.
func (o Object) Path() string {
	return o.Bucket + "/" + o.Key
}

// URI returns the s3:// form of the object location.
func (o Object) URI() string {
	return keyscheme.URIScheme + o.Path()
}

type Lister struct {
	client s3client.Client
	logger logger.Logger
}

func NewLister(client s3client.Client, logger logger.Logger) *Lister {
	return &Lister{
		client: client,
		logger: logger,
	}
}

var errStopped = errors.New("listing stopped by consumer")

// List returns a lazy sequence of the objects under prefixes, in listing
// order. Every iteration lists the store again. A listing failure is yielded
// once as the error value and ends the sequence.
func (l *Lister) List(ctx context.Context, prefixes []keyscheme.Prefix) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		for _, prefix := range prefixes {
			l.logger.Debug(fmt.Sprintf("listing %s", prefix))

			err := l.client.ListObjects(ctx, &s3client.ListObjectsRequest{
				Bucket: prefix.Bucket,
				Prefix: prefix.Prefix,
			}, func(items []s3client.ItemMetadata) error {
				for _, item := range items {
					obj := Object{Bucket: item.Bucket, Key: item.Key, Size: item.Size}
					if obj.Bucket == "" {
						obj.Bucket = prefix.Bucket
					}
					if !yield(obj, nil) {
						return errStopped
					}
				}
				return nil
			})
			if errors.Is(err, errStopped) {
				return
			}
			if err != nil {
				if !s3client.IsStoreUnavailable(err) {
					err = &s3client.StoreUnavailableError{Op: "list", Bucket: prefix.Bucket, Key: prefix.Prefix, Err: err}
				}
				yield(Object{}, err)
				return
			}
		}
	}
}

// Collect lists every prefix and returns the complete inventory. It returns
// no objects at all when any prefix fails to list.
func (l *Lister) Collect(ctx context.Context, prefixes []keyscheme.Prefix) ([]Object, error) {
	var objects []Object
	for obj, err := range l.List(ctx, prefixes) {
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
