package medium

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

// S3API is the subset of the S3 client used by S3Medium.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Uploader streams an object to S3, switching to multipart uploads for large
// bodies. *manager.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Medium stores objects in an S3 bucket under a key prefix. A single PUT
// replaces an object atomically, which gives Put its required semantics.
type S3Medium struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader Uploader
}

// NewS3Medium creates a medium over an existing client and uploader.
func NewS3Medium(name, bucket, prefix string, client S3API, uploader Uploader) *S3Medium {
	return &S3Medium{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: uploader,
	}
}

// NewS3MediumFromConfig loads AWS configuration and builds the client. Static
// credentials and a custom endpoint are used when configured; otherwise the
// default credential chain applies.
func NewS3MediumFromConfig(ctx context.Context, cfg config.MediumConfig) (*S3Medium, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Medium(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client, manager.NewUploader(client)), nil
}

func (m *S3Medium) Name() string { return m.name }

func (m *S3Medium) key(name string) *string {
	return aws.String(m.prefix + name)
}

func (m *S3Medium) notFound(name string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%s on %s: %w", name, m.name, redun.ErrNotFound)
	}
	return fmt.Errorf("s3 %s/%s: %w", m.bucket, m.prefix+name, err)
}

func (m *S3Medium) Put(name string, r io.Reader, size int64) error {
	cr := &countingReader{r: r}
	_, err := m.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           m.key(name),
		Body:          cr,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	if cr.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, cr.n)
	}
	return nil
}

// Open downloads the whole object into memory.
func (m *S3Medium) Open(name string) (redun.Object, error) {
	out, err := m.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    m.key(name),
	})
	if err != nil {
		return nil, m.notFound(name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	return bytesObject(data), nil
}

func (m *S3Medium) ReadAt(name string, p []byte, off int64) (int, error) {
	size, err := m.Stat(name)
	if err != nil {
		return 0, err
	}
	if off >= size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), size) - 1

	out, err := m.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    m.key(name),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, m.notFound(name, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off+1])
	if err != nil {
		return n, fmt.Errorf("reading %s: %w", name, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *S3Medium) Stat(name string) (int64, error) {
	out, err := m.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    m.key(name),
	})
	if err != nil {
		return 0, m.notFound(name, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Remove deletes the object. S3 reports success for missing keys.
func (m *S3Medium) Remove(name string) error {
	_, err := m.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    m.key(name),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

func (m *S3Medium) List(prefix string) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: m.key(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", m.name, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), m.prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (m *S3Medium) ValidateSetup() error {
	if m.bucket == "" {
		return fmt.Errorf("s3 medium %s has no bucket", m.name)
	}
	if _, err := m.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(m.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", m.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ redun.Medium = (*S3Medium)(nil)
