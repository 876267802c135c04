package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object - запись из листинга бакета.
type Object struct {
	Key          string
	URL          string
	Size         int64
	LastModified time.Time
}

// S3Client работает с любым S3-совместимым хранилищем (S3, R2, MinIO).
type S3Client struct {
	client    *s3.Client
	bucket    string
	endpoint  string
	region    string
	cdnURL    string
	pathStyle bool
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	CDNURL          string
	ForcePathStyle  bool
}

func NewS3Client(cfg S3Config) *S3Client {
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	return &S3Client{
		client:    s3.New(s3.Options{}, opts),
		bucket:    cfg.Bucket,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		region:    cfg.Region,
		cdnURL:    strings.TrimRight(cfg.CDNURL, "/"),
		pathStyle: cfg.ForcePathStyle,
	}
}

// Put загружает объект и возвращает его публичный URL.
func (c *S3Client) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return c.PublicURL(key), nil
}

// List возвращает объекты с префиксом в лексикографическом порядке ключей.
// cursor - continuation token предыдущей страницы.
func (c *S3Client) List(ctx context.Context, prefix, cursor string, limit int) ([]Object, string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(limit)),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("s3 list failed: %w", err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, item := range out.Contents {
		key := aws.ToString(item.Key)
		objects = append(objects, Object{
			Key:          key,
			URL:          c.PublicURL(key),
			Size:         aws.ToInt64(item.Size),
			LastModified: aws.ToTime(item.LastModified),
		})
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return objects, next, nil
}

// PublicURL строит адрес объекта: через CDN, если он задан.
func (c *S3Client) PublicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case c.cdnURL != "":
		return c.cdnURL + "/" + escaped
	case c.endpoint != "" && c.pathStyle:
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, escaped)
	case c.endpoint != "":
		u, err := url.Parse(c.endpoint)
		if err != nil {
			return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, escaped)
		}
		return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, c.bucket, u.Host, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
