package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// S3 stores artifacts in an S3-compatible bucket. Object uploads are
// atomic on the provider side, so readers never observe partial
// content. Checksums are computed at upload time and kept as object
// metadata to avoid re-reading artifact bytes.
type S3 struct {
	log    *logrus.Logger
	client *s3.Client
	bucket string
	prefix string
}

func NewS3(log *logrus.Logger, client *s3.Client, bucket, prefix string) *S3 {
	return &S3{log: log, client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3) key(file string) string {
	clean := strings.TrimPrefix(path.Clean("/"+file), "/")
	if s.prefix == "" {
		return clean
	}
	return s.prefix + "/" + clean
}

func checksumMetadataKey(algorithm string) string {
	return "checksum-" + algorithm
}

func isNotFound(err error) bool {
	var apiErr *smithy.GenericAPIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}

func (s *S3) Checksum(ctx context.Context, algorithm, file string) (string, error) {
	if _, err := newHash(algorithm); err != nil {
		return "", err
	}
	key := s.key(file)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if err != nil {
		return "", err
	}
	if sum, ok := head.Metadata[checksumMetadataKey(algorithm)]; ok && sum != "" {
		return sum, nil
	}

	// Metadata miss, hash the object body.
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return "", err
	}
	defer obj.Body.Close()
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, obj.Body); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *S3) Exists(ctx context.Context, file string) bool {
	key := s.key(file)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if !isNotFound(err) {
			s.log.Errorf("could not check %s in bucket %s: %v", file, s.bucket, err)
		}
		return false
	}
	return true
}

func (s *S3) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := s.key(prefix)
	if prefix == "" || prefix == "." {
		keyPrefix = s.prefix
	}
	files := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &keyPrefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			files = append(files, strings.TrimPrefix(rel, "/"))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *S3) Move(ctx context.Context, sourceAbsPath, destRelPath string) bool {
	f, err := os.Open(sourceAbsPath)
	if err != nil {
		s.log.Errorf("could not open %s: %v", sourceAbsPath, err)
		return false
	}
	defer f.Close()

	// Pre-compute the dist checksum so later Checksum calls are served
	// from object metadata.
	sha1sum, err := hashFile(sourceAbsPath, "sha1")
	if err != nil {
		s.log.Errorf("could not hash %s: %v", sourceAbsPath, err)
		return false
	}

	key := s.key(destRelPath)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/zip"),
		Metadata: map[string]string{
			checksumMetadataKey("sha1"): sha1sum,
		},
	})
	if err != nil {
		s.log.Errorf("could not upload %s: %v", destRelPath, err)
		return false
	}
	if err := os.Remove(sourceAbsPath); err != nil {
		s.log.Warnf("could not remove moved file %s: %v", sourceAbsPath, err)
	}
	return true
}

func hashFile(path, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *S3) Delete(ctx context.Context, file string) bool {
	key := s.key(file)
	if !s.Exists(ctx, file) {
		return false
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		s.log.Errorf("could not delete %s: %v", file, err)
		return false
	}
	return true
}

func (s *S3) Send(ctx context.Context, w http.ResponseWriter, file string) error {
	key := s.key(file)
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if err != nil {
		return err
	}
	defer obj.Body.Close()
	setDownloadHeaders(w, path.Base(file), aws.ToInt64(obj.ContentLength))
	_, err = io.Copy(w, obj.Body)
	return err
}
