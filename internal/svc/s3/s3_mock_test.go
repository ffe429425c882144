package s3

import (
	"bytes"
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/seventv/deepzoom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMock(t *testing.T) {
	ctx := context.Background()

	inst, err := NewMock(ctx, map[string]map[string][]byte{
		"output": {},
		"input":  {"a.png": []byte("png")},
	})
	testutil.IsNil(t, err, "mock builds")

	buf := aws.NewWriteAtBuffer(nil)
	testutil.IsNil(t, inst.DownloadFile(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String("input"),
		Key:    aws.String("a.png"),
	}), "download works")
	testutil.Assert(t, "png", string(buf.Bytes()), "downloaded data")

	assert.Error(t, inst.DownloadFile(ctx, aws.NewWriteAtBuffer(nil), &s3.GetObjectInput{
		Bucket: aws.String("input"),
		Key:    aws.String("missing"),
	}), "missing keys fail")

	testutil.IsNil(t, inst.UploadFile(ctx, &s3manager.UploadInput{
		Bucket: aws.String("output"),
		Key:    aws.String("b.jpg"),
		Body:   bytes.NewReader([]byte("jpg")),
	}), "upload works")

	buf = aws.NewWriteAtBuffer(nil)
	testutil.IsNil(t, inst.DownloadFile(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String("output"),
		Key:    aws.String("b.jpg"),
	}), "uploaded file downloads")
	testutil.Assert(t, "jpg", string(buf.Bytes()), "uploaded data")

	assert.Error(t, inst.UploadFile(ctx, &s3manager.UploadInput{
		Bucket: aws.String("nope"),
		Key:    aws.String("b.jpg"),
		Body:   bytes.NewReader(nil),
	}), "unknown buckets fail")

	buckets, err := inst.ListBuckets(ctx)
	testutil.IsNil(t, err, "list works")
	testutil.Assert(t, 2, len(buckets), "two buckets")
	testutil.Assert(t, "input", aws.StringValue(buckets[0].Name), "buckets are sorted")
}
