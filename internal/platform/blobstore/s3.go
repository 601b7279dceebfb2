package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object metadata keys. S3 lowercases user metadata keys.
const (
	metaFileName  = "file-name"
	metaPatientID = "patient-id"
	metaCategory  = "category"
	metaHash      = "sha256"
	metaCreatedAt = "created-at"
	metaCreatedBy = "created-by"
	metaTagPrefix = "tag-"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3BlobStore keeps each blob as one object under prefix. Blob metadata
// travels as S3 user metadata so no separate index is needed.
type S3BlobStore struct {
	client s3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3BlobStore(client *s3.Client, bucket, prefix string) *S3BlobStore {
	return newS3BlobStore(client, bucket, prefix)
}

func newS3BlobStore(client s3API, bucket, prefix string) *S3BlobStore {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *S3BlobStore) key(id string) string {
	return s.prefix + id
}

func (s *S3BlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content, s.now())
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(meta.ID)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata:      encodeMetadata(meta),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.ID, err)
	}
	return &meta, nil
}

func (s *S3BlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, nil, mapS3Error(id, err)
	}
	meta := decodeMetadata(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength))
	return out.Body, meta, nil
}

func (s *S3BlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, mapS3Error(id, err)
	}
	return decodeMetadata(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength)), nil
}

// Delete is not idempotent: a missing blob reports ErrBlobNotFound, matching
// the in-memory store.
func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

// ListByPatient lists every object under the patient's prefix and reads
// metadata for each one.
func (s *S3BlobStore) ListByPatient(ctx context.Context, patientID, category string, limit, offset int) ([]*BlobMetadata, int, error) {
	var (
		matched []*BlobMetadata
		token   *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.key(patientID + "/")),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("list objects for %s: %w", patientID, err)
		}
		for _, obj := range out.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			meta, err := s.GetMetadata(ctx, id)
			if err != nil {
				return nil, 0, err
			}
			if category != "" && meta.Category != category {
				continue
			}
			matched = append(matched, meta)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	items, total := page(matched, limit, offset)
	return items, total, nil
}

func encodeMetadata(meta BlobMetadata) map[string]string {
	m := map[string]string{
		metaFileName:  meta.FileName,
		metaPatientID: meta.PatientID,
		metaCategory:  meta.Category,
		metaHash:      meta.Hash,
		metaCreatedAt: meta.CreatedAt.Format(time.RFC3339Nano),
	}
	if meta.CreatedBy != "" {
		m[metaCreatedBy] = meta.CreatedBy
	}
	for k, v := range meta.Tags {
		m[metaTagPrefix+strings.ToLower(k)] = v
	}
	return m
}

func decodeMetadata(id string, m map[string]string, contentType string, size int64) *BlobMetadata {
	meta := &BlobMetadata{
		ID:          id,
		FileName:    m[metaFileName],
		ContentType: contentType,
		Size:        size,
		PatientID:   m[metaPatientID],
		Category:    m[metaCategory],
		Hash:        m[metaHash],
		CreatedBy:   m[metaCreatedBy],
		Tags:        make(map[string]string),
	}
	if ts, err := time.Parse(time.RFC3339Nano, m[metaCreatedAt]); err == nil {
		meta.CreatedAt = ts
	}
	for k, v := range m {
		if tag, ok := strings.CutPrefix(k, metaTagPrefix); ok {
			meta.Tags[tag] = v
		}
	}
	return meta
}

func mapS3Error(id string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrBlobNotFound
	}
	return fmt.Errorf("s3 object %s: %w", id, err)
}
