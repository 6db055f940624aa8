// Writes your blobs to AWS S3
package s3blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"regexp"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/blobstore"
)

type s3blobstore struct {
	bucket string
	namer  s3BlobNamer
	client *s3.S3
	logl   *logex.Leveled
}

var _ blobstore.Driver = (*s3blobstore)(nil)

func New(opts string, logger *log.Logger) (*s3blobstore, error) {
	conf, err := deserializeConfig(opts)
	if err != nil {
		return nil, err
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(conf.RegionId),
		Credentials: credentials.NewStaticCredentials(conf.AccessKeyId, conf.AccessKeySecret, ""),
	})
	if err != nil {
		return nil, err
	}

	return &s3blobstore{
		bucket: conf.Bucket,
		namer:  s3BlobNamer{conf.Prefix},
		client: s3.New(sess),
		logl:   logex.Levels(logex.NonNil(logger)),
	}, nil
}

func (s *s3blobstore) Store(ctx context.Context, hash string, content []byte) (string, error) {
	relativePath, err := blobstore.ShardedPath(hash)
	if err != nil {
		return "", err
	}

	if _, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    s.namer.Key(relativePath),
		Body:   bytes.NewReader(content),
	}); err != nil {
		return "", fmt.Errorf("s3 PutObject: %w", err)
	}

	return relativePath, nil
}

func (s *s3blobstore) Fetch(ctx context.Context, relativePath string) ([]byte, error) {
	if err := blobstore.ValidateRelativePath(relativePath); err != nil {
		return nil, err
	}

	res, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    s.namer.Key(relativePath),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notExist("fetch", relativePath)
		}

		return nil, fmt.Errorf("s3 GetObject: %w", err)
	}
	defer res.Body.Close()

	return io.ReadAll(res.Body)
}

// S3 DeleteObject succeeds for missing keys, so existence is checked first to honour
// the driver contract
func (s *s3blobstore) Delete(ctx context.Context, relativePath string) error {
	exists, err := s.Exists(ctx, relativePath)
	if err != nil {
		return err
	}

	if !exists {
		return notExist("delete", relativePath)
	}

	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    s.namer.Key(relativePath),
	}); err != nil {
		return fmt.Errorf("s3 DeleteObject: %w", err)
	}

	return nil
}

func (s *s3blobstore) Exists(ctx context.Context, relativePath string) (bool, error) {
	if err := blobstore.ValidateRelativePath(relativePath); err != nil {
		return false, err
	}

	if _, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    s.namer.Key(relativePath),
	}); err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("s3 HeadObject: %w", err)
	}

	return true, nil
}

func (s *s3blobstore) Footprint(ctx context.Context) (int64, error) {
	total := int64(0)

	if err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: aws.String(s.namer.prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			total += aws.Int64Value(obj.Size)
		}

		return true
	}); err != nil {
		return 0, fmt.Errorf("s3 ListObjectsV2: %w", err)
	}

	return total, nil
}

func (s *s3blobstore) Mountable(ctx context.Context) error {
	_, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		MaxKeys: aws.Int64(1), // we'll just want to see that the access key works
	})
	return err
}

type s3BlobNamer struct {
	prefix string
}

func (s *s3BlobNamer) Key(relativePath string) *string {
	return aws.String(s.prefix + relativePath)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}

	return false
}

// os.IsNotExist() doesn't unwrap %w, so this has to be a *fs.PathError
func notExist(op string, relativePath string) error {
	return &fs.PathError{Op: op, Path: relativePath, Err: fs.ErrNotExist}
}

type Config struct {
	Bucket          string
	Prefix          string
	AccessKeyId     string
	AccessKeySecret string
	RegionId        string
}

func (c *Config) Serialize() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", c.Bucket, c.Prefix, c.AccessKeyId, c.AccessKeySecret, c.RegionId)
}

var deserializeConfigRe = regexp.MustCompile("^([^:]+):([^:]*):([^:]+):([^:]+):([^:]+)$")

func deserializeConfig(serialized string) (*Config, error) {
	match := deserializeConfigRe.FindStringSubmatch(serialized)
	if match == nil {
		return nil, errors.New("s3 options not in format bucket:prefix:accessKeyId:secret:region")
	}

	return &Config{
		Bucket:          match[1],
		Prefix:          match[2],
		AccessKeyId:     match[3],
		AccessKeySecret: match[4],
		RegionId:        match[5],
	}, nil
}
