package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/seventv/deepzoom/internal/instance"
)

type Options struct {
	Region         string
	Endpoint       string
	AccessToken    string
	SecretKey      string
	ForcePathStyle bool
}

type Instance struct {
	client     *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func New(ctx context.Context, o Options) (instance.S3, error) {
	cfg := &aws.Config{
		Region:           aws.String(o.Region),
		S3ForcePathStyle: aws.Bool(o.ForcePathStyle),
	}

	if o.Endpoint != "" {
		cfg.Endpoint = aws.String(o.Endpoint)
	}

	if o.AccessToken != "" || o.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(o.AccessToken, o.SecretKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	return &Instance{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

func (i *Instance) DownloadFile(ctx context.Context, output io.WriterAt, input *s3.GetObjectInput) error {
	_, err := i.downloader.DownloadWithContext(ctx, output, input)

	return err
}

func (i *Instance) UploadFile(ctx context.Context, input *s3manager.UploadInput) error {
	_, err := i.uploader.UploadWithContext(ctx, input)

	return err
}

func (i *Instance) ListBuckets(ctx context.Context) ([]*s3.Bucket, error) {
	out, err := i.client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}

	return out.Buckets, nil
}
