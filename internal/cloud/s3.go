package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// mtimeKey is the object metadata entry holding the vault modification
// time; LastModified reflects upload time, not the file's.
const mtimeKey = "mtime"

// S3Dialer opens sessions against an S3 compatible bucket. The address is
// s3://bucket[/prefix]; username and password are the access key pair.
type S3Dialer struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Path-style
	// addressing is used when set.
	Endpoint string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

func (d S3Dialer) Dial(ctx context.Context, c Credentials) (Session, error) {
	bucket, prefix, err := parseS3Address(c.Address)
	if err != nil {
		return nil, err
	}

	var secret string
	if c.Password != nil {
		secret = c.Password.Expose()
	}
	region := d.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.Username, secret, "")),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if d.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if isS3AuthError(err) {
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return nil, err
	}
	return &s3Session{client: client, bucket: bucket, prefix: prefix}, nil
}

func parseS3Address(addr string) (bucket, prefix string, err error) {
	u, err := url.Parse(addr)
	if err != nil || !IsS3(addr) || u.Host == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func isS3AuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "Forbidden", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return true
	}
	return false
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nk *types.NoSuchKey
	if errors.As(err, &nk) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

type s3Session struct {
	client *s3.Client
	bucket string
	prefix string
}

func (s *s3Session) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *s3Session) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		return nil, err
	}

	mtime := aws.ToTime(out.LastModified)
	if v, ok := out.Metadata[mtimeKey]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			mtime = t
		}
	}
	return NewFileInfo(path.Base(name), aws.ToInt64(out.ContentLength), mtime), nil
}

// MkdirAll is a no-op; buckets have no directories.
func (s *s3Session) MkdirAll(context.Context, string) error {
	return nil
}

func (s *s3Session) Rename(ctx context.Context, oldName, newName string) error {
	parts := strings.Split(s.bucket+"/"+s.key(oldName), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(newName)),
		CopySource: aws.String(strings.Join(parts, "/")),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%s: %w", oldName, fs.ErrNotExist)
		}
		return err
	}
	return s.Remove(ctx, oldName)
}

func (s *s3Session) Remove(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

func (s *s3Session) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

func (s *s3Session) Create(ctx context.Context, name string, mtime time.Time) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, s: s, name: name, mtime: mtime}, nil
}

func (s *s3Session) Close() error {
	return nil
}

// s3Writer buffers the object and uploads it with one PutObject on Close.
type s3Writer struct {
	ctx   context.Context
	s     *s3Session
	name  string
	mtime time.Time
	buf   bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.s.bucket),
		Key:         aws.String(w.s.key(w.name)),
		Body:        bytes.NewReader(w.buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
	}
	if !w.mtime.IsZero() {
		in.Metadata = map[string]string{mtimeKey: w.mtime.UTC().Format(time.RFC3339Nano)}
	}
	_, err := w.s.client.PutObject(w.ctx, in)
	return err
}
