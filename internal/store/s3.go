package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vmcloud/glance/internal/glance"
)

// S3Backend serves s3://[<access>:<secret>@]<endpoint>/<bucket>/<object>
// locators. Credentials resolve in order: locator userinfo, store
// config keys, the AWS default credential chain. A fresh client is
// constructed per request rather than pooled inside the backend.
type S3Backend struct {
	endpoint  string // host used for writes, e.g. s3.amazonaws.com
	region    string
	bucket    string
	accessKey string
	secretKey string
	chunkSize int
}

var _ glance.WritableBackend = (*S3Backend)(nil)

// S3Config holds the settings for an S3 backend. Reads work with just
// a region; Put additionally needs an endpoint and a bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	ChunkSize int
}

// NewS3Backend creates an S3 backend from config.
func NewS3Backend(cfg S3Config) *S3Backend {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return &S3Backend{
		endpoint:  cfg.Endpoint,
		region:    region,
		bucket:    cfg.Bucket,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		chunkSize: cfg.ChunkSize,
	}
}

// s3Locator is a decomposed s3:// URI. user/key are empty when the
// locator carries no userinfo.
type s3Locator struct {
	user, key, host, bucket, object string
}

// parseS3Locator decomposes an s3:// locator. Credentials in the URI
// are optional since the backend can supply them; host, bucket and
// object are not.
func parseS3Locator(locator string) (*s3Locator, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: err.Error()}
	}
	if u.Scheme != "s3" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "expected scheme s3"}
	}
	if u.Host == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing endpoint host"}
	}

	loc := &s3Locator{host: u.Host}
	if u.User != nil {
		loc.user = u.User.Username()
		loc.key, _ = u.User.Password()
		if loc.user == "" || loc.key == "" {
			return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "incomplete credentials"}
		}
	}

	path := strings.Trim(u.Path, "/")
	bucket, object, found := strings.Cut(path, "/")
	if !found || bucket == "" || object == "" {
		return nil, &glance.InvalidLocatorError{Locator: locator, Reason: "missing bucket or object"}
	}
	loc.bucket = bucket
	loc.object = object
	return loc, nil
}

// Get fetches the object the locator names and streams it in chunks.
func (b *S3Backend) Get(ctx context.Context, locator string, expectedSize int64) (glance.ChunkStream, error) {
	loc, err := parseS3Locator(locator)
	if err != nil {
		return nil, err
	}

	client, err := b.client(ctx, loc.host, loc.user, loc.key)
	if err != nil {
		return nil, &glance.TransportError{Locator: locator, Err: err}
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.bucket),
		Key:    aws.String(loc.object),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, &glance.NotFoundError{Locator: locator}
		}
		return nil, &glance.TransportError{Locator: locator, Err: err}
	}

	return newChunkStream(out.Body, locator, b.chunkSize, expectedSize), nil
}

// Put uploads the bytes read from r to <bucket>/<key> through the
// multipart upload manager and returns the locator the object is now
// addressable by. Configured keys are embedded in the locator so later
// reads resolve without store config; default-chain uploads produce a
// credentialless locator.
func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) (string, int64, error) {
	if b.endpoint == "" || b.bucket == "" {
		return "", 0, fmt.Errorf("s3 store is not configured for writes (endpoint and bucket required)")
	}

	location := fmt.Sprintf("s3://%s/%s/%s", b.endpoint, b.bucket, key)
	if b.accessKey != "" && b.secretKey != "" {
		location = fmt.Sprintf("s3://%s:%s@%s/%s/%s", b.accessKey, b.secretKey, b.endpoint, b.bucket, key)
	}

	client, err := b.client(ctx, b.endpoint, b.accessKey, b.secretKey)
	if err != nil {
		return "", 0, &glance.TransportError{Locator: location, Err: err}
	}

	cr := &countingReader{r: r}
	uploader := manager.NewUploader(client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   cr,
	}); err != nil {
		return "", 0, &glance.TransportError{Locator: location, Err: err}
	}

	if size >= 0 && cr.n != size {
		return "", cr.n, &glance.SizeMismatchError{Locator: location, Expected: size, Actual: cr.n}
	}

	return location, cr.n, nil
}

// client builds an S3 client for the given host. Explicit credentials
// win; with none, the locator may still be readable through whatever
// the AWS default chain provides.
func (b *S3Backend) client(ctx context.Context, host, accessKey, secretKey string) (*s3.Client, error) {
	if accessKey == "" || secretKey == "" {
		accessKey, secretKey = b.accessKey, b.secretKey
	}

	endpoint := aws.String("https://" + host)

	if accessKey != "" && secretKey != "" {
		return s3.New(s3.Options{
			Region:       b.region,
			BaseEndpoint: endpoint,
			UsePathStyle: true,
			Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		}), nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(b.region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = true
	}), nil
}
