// Package archive ships a dumped journal to S3 compatible object storage.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const contentType = "application/gzip"

// Config locates the destination bucket. Endpoint switches to path-style
// addressing for MinIO and similar servers.
type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// Uploader is the subset of the S3 client used by Archiver.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads journal directories as tar.gz objects.
type Archiver struct {
	client Uploader
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3 builds an Archiver from the default AWS credential chain.
func NewS3(ctx context.Context, cfg Config, logger *zap.Logger) (*Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return New(s3.NewFromConfig(awsCfg, s3opts...), cfg, logger), nil
}

// New wraps an existing client.
func New(client Uploader, cfg Config, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.Named("archive"),
	}
}

// Key returns the object key a session is stored under.
func (a *Archiver) Key(sessionID string) string {
	return path.Join(a.prefix, sessionID+".tar.gz")
}

// Upload packs dir and stores it under the session key.
func (a *Archiver) Upload(ctx context.Context, dir, sessionID string) (string, error) {
	var buf bytes.Buffer
	if err := Pack(&buf, dir); err != nil {
		return "", err
	}
	key := a.Key(sessionID)
	size := buf.Len()
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	a.logger.Info("Journal archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("bytes", size))
	return key, nil
}

// Pack writes the regular files below dir to w as a gzip compressed tarball.
// Entry names are slash separated and relative to dir.
func Pack(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFile(tw, p)
	})
	if err != nil {
		return fmt.Errorf("packing %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func copyFile(w io.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
