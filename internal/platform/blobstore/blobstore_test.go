package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ---------------------------------------------------------------------------
// fake S3
// ---------------------------------------------------------------------------

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	putErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject), pageSize: 1000}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		fmt.Sscanf(*in.ContinuationToken, "%d", &start)
	}
	end := start + f.pageSize
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprint(end))
	} else {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// shared behavior
// ---------------------------------------------------------------------------

type storeFactory func() BlobStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func() BlobStore { return NewInMemoryBlobStore() },
		"s3":     func() BlobStore { return newS3BlobStore(newFakeS3(), "records", "exports") },
	}
}

func pdfMeta(patientID string) BlobMetadata {
	return BlobMetadata{
		FileName:    "health-records.pdf",
		ContentType: "application/pdf",
		PatientID:   patientID,
		Category:    CategoryHealthRecord,
		CreatedBy:   "doctor-1",
		Tags:        map[string]string{"records": "3"},
	}
}

func TestBlobStore_UploadDownload(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			content := "%PDF-1.3 fake"

			meta, err := store.Upload(ctx, pdfMeta("p1"), strings.NewReader(content))
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if !strings.HasPrefix(meta.ID, "p1/") {
				t.Errorf("expected id under patient prefix, got %s", meta.ID)
			}
			if meta.Size != int64(len(content)) {
				t.Errorf("expected size %d, got %d", len(content), meta.Size)
			}
			if meta.Hash != fmt.Sprintf("%x", sha256.Sum256([]byte(content))) {
				t.Errorf("unexpected hash %s", meta.Hash)
			}

			rc, got, err := store.Download(ctx, meta.ID)
			if err != nil {
				t.Fatalf("download: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if string(body) != content {
				t.Errorf("expected %q, got %q", content, body)
			}
			if got.FileName != "health-records.pdf" || got.Category != CategoryHealthRecord || got.PatientID != "p1" {
				t.Errorf("metadata not preserved: %+v", got)
			}
			if got.Tags["records"] != "3" {
				t.Errorf("expected tag preserved, got %v", got.Tags)
			}
			if got.CreatedAt.IsZero() {
				t.Error("expected created time")
			}
		})
	}
}

func TestBlobStore_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BlobMetadata)
		content string
		wantErr error
	}{
		{"missing file name", func(m *BlobMetadata) { m.FileName = "" }, "x", ErrMissingFileName},
		{"missing patient", func(m *BlobMetadata) { m.PatientID = "" }, "x", ErrMissingPatient},
		{"bad category", func(m *BlobMetadata) { m.Category = "xray" }, "x", ErrInvalidCategory},
		{"bad content type", func(m *BlobMetadata) { m.ContentType = "application/zip" }, "x", ErrInvalidContentType},
		{"too large", func(m *BlobMetadata) {}, strings.Repeat("a", MaxFileSize+1), ErrFileTooLarge},
	}

	for name, newStore := range backends() {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				meta := pdfMeta("p1")
				tt.mutate(&meta)
				_, err := newStore().Upload(context.Background(), meta, strings.NewReader(tt.content))
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	}
}

func TestBlobStore_DefaultCategory(t *testing.T) {
	meta := pdfMeta("p1")
	meta.Category = ""
	got, err := NewInMemoryBlobStore().Upload(context.Background(), meta, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got.Category != CategoryOther {
		t.Errorf("expected %s, got %s", CategoryOther, got.Category)
	}
}

func TestBlobStore_NotFound(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()

			if _, _, err := store.Download(ctx, "p1/missing"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("download: expected ErrBlobNotFound, got %v", err)
			}
			if _, err := store.GetMetadata(ctx, "p1/missing"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("metadata: expected ErrBlobNotFound, got %v", err)
			}
			if err := store.Delete(ctx, "p1/missing"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("delete: expected ErrBlobNotFound, got %v", err)
			}
		})
	}
}

func TestBlobStore_Delete(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			meta, _ := store.Upload(ctx, pdfMeta("p1"), strings.NewReader("x"))

			if err := store.Delete(ctx, meta.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.GetMetadata(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected blob gone, got %v", err)
			}
		})
	}
}

func TestBlobStore_ListByPatient(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if _, err := store.Upload(ctx, pdfMeta("p1"), strings.NewReader("x")); err != nil {
					t.Fatalf("upload: %v", err)
				}
			}
			other := pdfMeta("p1")
			other.Category = CategoryPrescription
			other.ContentType = "image/png"
			_, _ = store.Upload(ctx, other, strings.NewReader("img"))
			_, _ = store.Upload(ctx, pdfMeta("p10"), strings.NewReader("x"))

			all, total, err := store.ListByPatient(ctx, "p1", "", 10, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if total != 4 || len(all) != 4 {
				t.Errorf("expected 4 blobs for p1, got total=%d len=%d", total, len(all))
			}

			records, total, _ := store.ListByPatient(ctx, "p1", CategoryHealthRecord, 2, 0)
			if total != 3 || len(records) != 2 {
				t.Errorf("expected page of 2 out of 3, got total=%d len=%d", total, len(records))
			}

			rest, _, _ := store.ListByPatient(ctx, "p1", CategoryHealthRecord, 2, 2)
			if len(rest) != 1 {
				t.Errorf("expected 1 on second page, got %d", len(rest))
			}

			none, total, _ := store.ListByPatient(ctx, "nobody", "", 10, 0)
			if total != 0 || len(none) != 0 {
				t.Errorf("expected nothing for unknown patient, got %d", total)
			}
		})
	}
}

func TestInMemoryBlobStore_ListNewestFirst(t *testing.T) {
	store := NewInMemoryBlobStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return ts }
		m, _ := store.Upload(context.Background(), pdfMeta("p1"), strings.NewReader("x"))
		ids = append(ids, m.ID)
	}

	items, _, _ := store.ListByPatient(context.Background(), "p1", "", 10, 0)
	if len(items) != 3 || items[0].ID != ids[2] || items[2].ID != ids[0] {
		t.Errorf("expected newest first, got %v", items)
	}
}

func TestS3BlobStore_Pagination(t *testing.T) {
	fake := newFakeS3()
	fake.pageSize = 2
	store := newS3BlobStore(fake, "records", "exports/")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Upload(ctx, pdfMeta("p1"), strings.NewReader("x")); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	_, total, err := store.ListByPatient(ctx, "p1", "", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("expected all 5 across continuation pages, got %d", total)
	}
	for key := range fake.objects {
		if !strings.HasPrefix(key, "exports/p1/") {
			t.Errorf("expected key under prefix, got %s", key)
		}
	}
}

func TestS3BlobStore_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	store := newS3BlobStore(fake, "records", "")

	_, err := store.Upload(context.Background(), pdfMeta("p1"), strings.NewReader("x"))
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("expected wrapped put error, got %v", err)
	}
}
