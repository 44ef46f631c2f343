package chunkstore

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/latticerun/hostcore/cmn"
)

// S3Backend is the ObjectStore binding for a real lattice deployment,
// adapted from the grounding repository's AWS cloud provider (same
// session.NewSessionWithOptions + s3manager.Uploader pattern, generalized
// from per-bucket object puts to chunk-store blob puts).
type S3Backend struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

func NewS3Backend(bucket string) (*S3Backend, error) {
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "create aws session", err)
	}
	return &S3Backend{
		bucket:   bucket,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cmn.NewKindErr(cmn.ErrChunkStoreFailure, "s3 upload", err)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, cmn.NewKindErr(cmn.ErrChunkStoreFailure, "s3 get", err)
	}
	defer out.Body.Close()
	return ioutil.ReadAll(out.Body)
}
