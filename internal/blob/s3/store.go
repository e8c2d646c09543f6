// Package s3 implements blob.Store against Amazon S3 and S3-compatible
// object stores.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/models"
)

// Options configures a Store. Endpoint and static credentials are optional;
// when absent the default AWS credential chain and endpoints are used.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Store serves blobs from one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	logger *events.Logger
}

// New creates an S3-backed store.
func New(ctx context.Context, opts Options, logger *events.Logger) (*Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &Store{
		client: client,
		bucket: opts.Bucket,
		logger: logger.WithField("component", "s3_store"),
	}, nil
}

// NewWithClient creates a store around an existing client.
func NewWithClient(client *s3.Client, bucket string, logger *events.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: logger.WithField("component", "s3_store"),
	}
}

// Properties implements blob.Store. Conditional failures come back from S3
// as HTTP 304/412 and are mapped onto the outcome variant.
func (s *Store) Properties(ctx context.Context, name string, cond *blob.Conditions) (blob.Properties, blob.Outcome, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}
	if cond != nil {
		if cond.IfMatch != "" {
			input.IfMatch = aws.String(cond.IfMatch)
		}
		if cond.IfNoneMatch != "" {
			input.IfNoneMatch = aws.String(cond.IfNoneMatch)
		}
		if !cond.IfModifiedSince.IsZero() {
			input.IfModifiedSince = aws.Time(cond.IfModifiedSince)
		}
		if !cond.IfUnmodifiedSince.IsZero() {
			input.IfUnmodifiedSince = aws.Time(cond.IfUnmodifiedSince)
		}
	}

	result, err := s.client.HeadObject(ctx, input)
	if err != nil {
		switch statusCode(err) {
		case http.StatusNotFound:
			return blob.Properties{}, blob.OutcomeNotFound, nil
		case http.StatusNotModified:
			return blob.Properties{}, blob.OutcomeNotModified, nil
		case http.StatusPreconditionFailed:
			return blob.Properties{}, blob.OutcomePreconditionFailed, nil
		}

		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return blob.Properties{}, blob.OutcomeNotFound, nil
		}
		return blob.Properties{}, blob.OutcomeNotFound, fmt.Errorf("head object %s: %w", name, err)
	}

	lastModified := aws.ToTime(result.LastModified)
	props := blob.Properties{
		ContentLength: aws.ToInt64(result.ContentLength),
		ContentType:   aws.ToString(result.ContentType),
		ETag:          unquote(aws.ToString(result.ETag)),
		LastModified:  lastModified,
		// S3 keeps no separate creation time.
		Created:  lastModified,
		Metadata: result.Metadata,
	}
	return props, blob.OutcomeOK, nil
}

// Download implements blob.Store.
func (s *Store) Download(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}

	var rangeHeader string
	if length < 0 {
		rangeHeader = fmt.Sprintf("bytes=%d-", offset)
	} else {
		rangeHeader = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) || statusCode(err) == http.StatusNotFound {
			return nil, &models.PathError{Op: "download", Path: name, Err: models.ErrNotFound}
		}
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}

	return result.Body, nil
}

// Upload implements blob.Store. With opts.IfAbsent the write carries
// If-None-Match: * so that concurrent creators race atomically on the
// store side.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, opts blob.UploadOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   r,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.IfAbsent {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		if opts.IfAbsent && statusCode(err) == http.StatusPreconditionFailed {
			return &models.PathError{Op: "upload", Path: name, Err: models.ErrAlreadyExists}
		}
		return fmt.Errorf("put object %s: %w", name, err)
	}

	s.logger.WithField("key", name).Debug("Uploaded blob")
	return nil
}

// Delete implements blob.Store. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// Exists implements blob.Store.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) || statusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", name, err)
	}
	return true, nil
}

// Copy implements blob.Store. CopyObject is synchronous within a bucket, so
// returning without error means the destination write has completed.
func (s *Store) Copy(ctx context.Context, srcName, dstName string) error {
	source := url.PathEscape(s.bucket + "/" + srcName)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstName),
		CopySource: aws.String(source),
	})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return &models.PathError{Op: "copy", Path: srcName, Err: models.ErrNotFound}
		}
		return fmt.Errorf("copy object %s to %s: %w", srcName, dstName, err)
	}
	return nil
}

// List implements blob.Store.
func (s *Store) List(prefix, delimiter string, pageSize int32) blob.Pager {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if pageSize > 0 {
		input.MaxKeys = aws.Int32(pageSize)
	}

	return &pager{inner: s3.NewListObjectsV2Paginator(s.client, input)}
}

type pager struct {
	inner *s3.ListObjectsV2Paginator
}

func (p *pager) HasMorePages() bool {
	return p.inner.HasMorePages()
}

func (p *pager) NextPage(ctx context.Context) ([]blob.Item, error) {
	page, err := p.inner.NextPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	items := make([]blob.Item, 0, len(page.CommonPrefixes)+len(page.Contents))
	for _, cp := range page.CommonPrefixes {
		items = append(items, blob.Item{IsPrefix: true, Name: aws.ToString(cp.Prefix)})
	}
	for _, obj := range page.Contents {
		lastModified := aws.ToTime(obj.LastModified)
		items = append(items, blob.Item{
			Name: aws.ToString(obj.Key),
			Props: &blob.Properties{
				ContentLength: aws.ToInt64(obj.Size),
				ETag:          unquote(aws.ToString(obj.ETag)),
				LastModified:  lastModified,
				Created:       lastModified,
			},
		})
	}
	return items, nil
}

func statusCode(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

func unquote(etag string) string {
	return strings.Trim(etag, `"`)
}
