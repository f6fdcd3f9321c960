package s3client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	DefaultRegion = "us-east-1"

	defaultPartSize            = 16 * 1024 * 1024
	defaultDownloadConcurrency = 4
)

type AWSClient struct {
	client     *s3.Client
	downloader *manager.Downloader
	retry      RetryPolicy
}

// LoadAnonymousConfig loads an AWS config that signs nothing, which is what
// the public NOAA buckets expect.
func LoadAnonymousConfig(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewAWSClient wraps an S3 client built from cfg. A zero retry policy is
// replaced by DefaultRetryPolicy.
func NewAWSClient(cfg aws.Config, retry RetryPolicy) *AWSClient {
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	client := s3.NewFromConfig(cfg)
	return &AWSClient{
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = defaultPartSize
			d.Concurrency = defaultDownloadConcurrency
		}),
		retry: retry,
	}
}

func (c *AWSClient) ListObjects(ctx context.Context, req *ListObjectsRequest, fn func([]ItemMetadata) error) error {
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(req.Bucket),
		Prefix: aws.String(req.Prefix),
	})

	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := c.retry.Do(ctx, func() error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return &StoreUnavailableError{Op: "list", Bucket: req.Bucket, Key: req.Prefix, Err: err}
		}

		items := make([]ItemMetadata, 0, len(page.Contents))
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			items = append(items, ItemMetadata{
				Bucket:  req.Bucket,
				Key:     *obj.Key,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}

		if err := fn(items); err != nil {
			return err
		}
	}

	return nil
}

func (c *AWSClient) GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error) {
	var out *s3.GetObjectOutput
	err := c.retry.Do(ctx, func() error {
		var err error
		out, err = c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
		return err
	})
	if err != nil {
		return nil, &StoreUnavailableError{Op: "get", Bucket: req.Bucket, Key: req.Key, Err: err}
	}
	return out.Body, nil
}

// Download fetches the object in parallel ranged parts. It returns the number
// of bytes written to w.
func (c *AWSClient) Download(ctx context.Context, req *GetObjectRequest, w io.WriterAt) (int64, error) {
	n, err := c.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(req.Key),
	})
	if err != nil {
		return n, fmt.Errorf("failed to download s3://%s/%s: %w", req.Bucket, req.Key, err)
	}
	return n, nil
}

var (
	_ Client     = (*AWSClient)(nil)
	_ Downloader = (*AWSClient)(nil)
)
