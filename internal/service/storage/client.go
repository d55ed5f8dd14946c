package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lumehealth/lume/backend/internal/apperr"
)

// MaxSignedURLTTL is the longest lifetime the bucket backend accepts for a
// presigned link.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// Config describes the session-artifact bucket.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string // empty for the provider default
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Enabled reports whether the bucket is configured.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ObjectInfo is one listed object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// SignedURL is a time-limited pre-authorized read link. Issued fresh on
// every request, never cached.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// s3API is the slice of the bucket SDK the client uses. *s3.Client
// satisfies it.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// presignAPI is the slice of the presigner the client uses.
// *s3.PresignClient satisfies it.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client wraps the bucket for one logical operation. Callers acquire a
// client with Open, use it, and release it with Close on every exit path.
type Client struct {
	bucket    string
	api       s3API
	presigner presignAPI
	now       func() time.Time

	closeOnce sync.Once
	release   func()
}

// Open acquires a bucket client. The caller owns the returned client and
// must Close it exactly once, whether or not the operation in between
// succeeded.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	const op = "storage.open"

	if !cfg.Enabled() {
		return nil, apperr.New(apperr.KindValidation, op, "object store is not configured")
	}

	httpc := &http.Client{Timeout: 30 * time.Second}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(httpc),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, op, "load bucket configuration", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{
		bucket:    cfg.Bucket,
		api:       api,
		presigner: s3.NewPresignClient(api),
		now:       time.Now,
		release:   httpc.CloseIdleConnections,
	}, nil
}

// Close releases the underlying network resources. Safe against double
// invocation so deferred cleanup and error paths cannot collide.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.release != nil {
			c.release()
		}
	})
}

// Upload stores data under key, overwriting any previous content.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	const op = "storage.upload"

	if key == "" {
		return "", apperr.New(apperr.KindValidation, op, "key is required")
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := c.api.PutObject(ctx, in); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, op, fmt.Sprintf("put %s", key), err)
	}
	return key, nil
}

// ListByPrefix returns up to max objects under prefix, silently truncated:
// callers must not assume completeness beyond max. Re-calling with the same
// prefix restarts the listing.
func (c *Client) ListByPrefix(ctx context.Context, prefix string, max int32) ([]ObjectInfo, error) {
	const op = "storage.list"

	if max <= 0 {
		return nil, nil
	}

	out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(max),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, op, fmt.Sprintf("list %s", prefix), err)
	}

	infos := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if int32(len(infos)) >= max {
			break
		}
		info := ObjectInfo{Key: aws.ToString(obj.Key)}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		if obj.LastModified != nil {
			info.LastModified = obj.LastModified.UTC()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SignedURL issues a fresh time-limited read link for key. The key must
// exist and the TTL must not exceed the backend maximum.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (SignedURL, error) {
	const op = "storage.signedurl"

	if key == "" {
		return SignedURL{}, apperr.New(apperr.KindValidation, op, "key is required")
	}
	if ttl <= 0 {
		return SignedURL{}, apperr.New(apperr.KindValidation, op, "ttl must be positive")
	}
	if ttl > MaxSignedURLTTL {
		return SignedURL{}, apperr.New(apperr.KindStorage, op, fmt.Sprintf("ttl %s exceeds the backend maximum %s", ttl, MaxSignedURLTTL))
	}

	if _, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return SignedURL{}, apperr.New(apperr.KindStorage, op, fmt.Sprintf("key %s does not exist", key))
		}
		return SignedURL{}, apperr.Wrap(apperr.KindStorage, op, fmt.Sprintf("head %s", key), err)
	}

	issuedAt := c.now()
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return SignedURL{}, apperr.Wrap(apperr.KindStorage, op, fmt.Sprintf("presign %s", key), err)
	}

	return SignedURL{URL: req.URL, ExpiresAt: issuedAt.Add(ttl)}, nil
}
