package s3

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/seventv/common/sync_map"
	"github.com/seventv/deepzoom/internal/instance"
)

type mockBucket struct {
	mtx   sync.Mutex
	files map[string][]byte
}

type MockInstance struct {
	names   []string
	buckets *sync_map.Map[string, *mockBucket]
}

// NewMock serves files from memory, keyed by bucket then key.
func NewMock(ctx context.Context, files map[string]map[string][]byte) (instance.S3, error) {
	m := &MockInstance{
		buckets: &sync_map.Map[string, *mockBucket]{},
	}

	for bucket, keys := range files {
		b := &mockBucket{files: map[string][]byte{}}
		for k, v := range keys {
			b.files[k] = v
		}
		m.buckets.Store(bucket, b)
		m.names = append(m.names, bucket)
	}
	sort.Strings(m.names)

	return m, nil
}

func (i *MockInstance) DownloadFile(ctx context.Context, output io.WriterAt, input *s3.GetObjectInput) error {
	b, ok := i.buckets.Load(aws.StringValue(input.Bucket))
	if !ok {
		return awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("bucket %s does not exist", aws.StringValue(input.Bucket)), nil)
	}

	b.mtx.Lock()
	data, ok := b.files[aws.StringValue(input.Key)]
	b.mtx.Unlock()

	if !ok {
		return awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("key %s does not exist", aws.StringValue(input.Key)), nil)
	}

	_, err := output.WriteAt(data, 0)

	return err
}

func (i *MockInstance) UploadFile(ctx context.Context, input *s3manager.UploadInput) error {
	b, ok := i.buckets.Load(aws.StringValue(input.Bucket))
	if !ok {
		return awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("bucket %s does not exist", aws.StringValue(input.Bucket)), nil)
	}

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return err
	}

	b.mtx.Lock()
	b.files[aws.StringValue(input.Key)] = data
	b.mtx.Unlock()

	return nil
}

func (i *MockInstance) ListBuckets(ctx context.Context) ([]*s3.Bucket, error) {
	buckets := make([]*s3.Bucket, len(i.names))
	for idx, name := range i.names {
		buckets[idx] = &s3.Bucket{Name: aws.String(name)}
	}

	return buckets, nil
}
