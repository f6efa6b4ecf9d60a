package aws

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"fold-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of the S3 API used by the mirror
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client mirrors finished job artifacts to an S3 bucket
type Client struct {
	s3Client ObjectPutter
	bucket   string
	prefix   string
}

// NewClient creates a new AWS client using the default credential chain
func NewClient(ctx context.Context, region, bucket, prefix string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewClientWithAPI(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewClientWithAPI creates a mirror on top of an existing S3 API
func NewClientWithAPI(api ObjectPutter, bucket, prefix string) *Client {
	return &Client{
		s3Client: api,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// ObjectKey returns the key a job file is uploaded under
func (c *Client) ObjectKey(jobName, file string) string {
	return path.Join(c.prefix, jobName, filepath.Base(file))
}

// Mirror uploads the given files of a job. It stops at the first failure.
func (c *Client) Mirror(ctx context.Context, job *models.Job, files []string) error {
	for _, file := range files {
		if err := c.upload(ctx, job, file); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upload(ctx context.Context, job *models.Job, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	contentType := "chemical/x-pdb"
	if strings.HasSuffix(file, ".json") {
		contentType = "application/json"
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.ObjectKey(job.Name, file)),
		Body:        f,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"job":    job.Name,
			"run-id": job.RunID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s: %w", file, c.bucket, err)
	}
	return nil
}
