package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobWriter stores an exported object under a key.
type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Location describes where a key ends up, for operator output.
	Location(key string) string
}

// sanitizeKey rejects keys that would escape the export root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

// DirWriter writes exports below a local directory.
type DirWriter struct {
	root string
}

// NewDirWriter returns a writer rooted at root, creating it if needed.
func NewDirWriter(root string) (*DirWriter, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirWriter{root: root}, nil
}

// Put writes the object through a temporary file and renames it into place.
func (d *DirWriter) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(d.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Location returns the file path of key.
func (d *DirWriter) Location(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

// S3Config configures the S3 export destination.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; set for S3-compatible stores such as MinIO
	PathStyle bool
	Prefix    string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer uploads exports to an S3 bucket.
type S3Writer struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Writer builds a writer using the default AWS credential chain.
func NewS3Writer(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &S3Writer{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (w *S3Writer) objectKey(key string) string {
	if w.prefix == "" {
		return key
	}
	return w.prefix + "/" + key
}

// Put uploads the object. Exports are small so the body is sent as a seekable buffer.
func (w *S3Writer) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.objectKey(clean)),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", w.bucket, w.objectKey(clean), err)
	}
	return nil
}

// Location returns the s3:// URI of key.
func (w *S3Writer) Location(key string) string {
	return "s3://" + w.bucket + "/" + w.objectKey(key)
}
