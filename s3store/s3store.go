// Package s3store backs a zipappend archive with an Amazon S3 object.
//
// S3 offers no positional writes, so the object is staged in a local
// spool file: opening an existing object downloads it, reads and writes
// hit the spool, and Close uploads the result with a single PutObject
// when anything was written. The spool lives in the system temporary
// directory and is removed on Close.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/martin-sucha/zipappend"
)

// s3API is the part of the S3 client this package uses.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Opener opens archives stored as S3 objects. URLs take the form
// s3://bucket/key.
type Opener struct {
	client s3API
}

// New creates an Opener using the ambient AWS configuration (the
// standard credential and region chain).
func New(ctx context.Context) (*Opener, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3store: loading AWS config: %w", err)
	}
	return &Opener{client: s3.NewFromConfig(cfg)}, nil
}

// NewWithClient creates an Opener using an existing S3 client.
func NewWithClient(client s3API) *Opener {
	return &Opener{client: client}
}

func parseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("s3store: not an s3:// URL: %s", url)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3store: URL must have the form s3://bucket/key: %s", url)
	}
	return bucket, key, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func (o *Opener) Stat(ctx context.Context, url string) (zipappend.StoreInfo, error) {
	bucket, key, err := parseURL(url)
	if err != nil {
		return zipappend.StoreInfo{}, err
	}
	head, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return zipappend.StoreInfo{}, nil
		}
		return zipappend.StoreInfo{}, err
	}
	return zipappend.StoreInfo{Exists: true, Size: aws.ToInt64(head.ContentLength)}, nil
}

func (o *Opener) Open(ctx context.Context, url string, mode zipappend.OpenMode) (zipappend.Store, error) {
	bucket, key, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	spool, err := os.CreateTemp("", "zipappend-s3-*")
	if err != nil {
		return nil, err
	}
	s := &store{
		client: o.client,
		bucket: bucket,
		key:    key,
		spool:  spool,
	}
	if mode == zipappend.Update {
		if err := s.download(ctx); err != nil {
			s.discard()
			return nil, err
		}
	}
	return s, nil
}

type store struct {
	client s3API
	bucket string
	key    string
	spool  *os.File
	dirty  bool
}

func (s *store) download(ctx context.Context) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return err
	}
	defer result.Body.Close()
	if _, err := io.Copy(s.spool, result.Body); err != nil {
		return err
	}
	return nil
}

func (s *store) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.spool.ReadAt(p, off)
}

func (s *store) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.spool.WriteAt(p, off)
	if n > 0 {
		s.dirty = true
	}
	return n, err
}

// Close uploads the spool when it was written to and removes it.
func (s *store) Close() error {
	defer s.discard()
	if !s.dirty {
		return nil
	}
	if _, err := s.spool.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   s.spool,
	})
	if err != nil {
		return fmt.Errorf("s3store: uploading s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *store) discard() {
	name := s.spool.Name()
	s.spool.Close()
	os.Remove(name)
}
