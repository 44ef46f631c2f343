package chunkstore

import (
	"context"
	"io/ioutil"

	"cloud.google.com/go/storage"

	"github.com/latticerun/hostcore/cmn"
)

// GCSBackend mirrors S3Backend for Google Cloud Storage, adapted from the
// grounding repository's GCP cloud provider (ais/cloud/gcp.go): one
// storage.Client shared across calls, objects addressed by bucket+key.
type GCSBackend struct {
	bucket string
	client *storage.Client
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "create gcs client", err)
	}
	return &GCSBackend{bucket: bucket, client: client}, nil
}

func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return cmn.NewKindErr(cmn.ErrChunkStoreFailure, "gcs write", err)
	}
	if err := w.Close(); err != nil {
		return cmn.NewKindErr(cmn.ErrChunkStoreFailure, "gcs close writer", err)
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "gcs open reader", err)
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}
