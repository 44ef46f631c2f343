package chunkstore

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/latticerun/hostcore/cmn"
)

// AzureBackend mirrors S3Backend/GCSBackend for Azure Blob Storage,
// adapted from the grounding repository's azure-storage-blob-go usage
// pattern (a ContainerURL scoped to one account/container, blob URLs built
// per key).
type AzureBackend struct {
	container azblob.ContainerURL
}

func NewAzureBackend(account, accountKey, container string) (*AzureBackend, error) {
	cred, err := azblob.NewSharedKeyCredential(account, accountKey)
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "create azure credential", err)
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	u, _ := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", account, container))
	return &AzureBackend{container: azblob.NewContainerURL(*u, pipeline)}, nil
}

func (b *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	blob := b.container.NewBlockBlobURL(key)
	_, err := blob.Upload(ctx, bytes.NewReader(data), azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		return cmn.NewKindErr(cmn.ErrChunkStoreFailure, "azure upload", err)
	}
	return nil
}

func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	blob := b.container.NewBlockBlobURL(key)
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "azure download", err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	return ioutil.ReadAll(body)
}
