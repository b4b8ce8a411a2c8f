package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	runID := uuid.New()
	info, err := store.Put(ctx, runID, "becas_2020.csv", ContentTypeCSV, strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, runID, info.RunID)

	_, err = store.Put(ctx, runID, "procedencia.csv", ContentTypeCSV, strings.NewReader("x\n"))
	require.NoError(t, err)

	rc, got, err := store.Get(ctx, runID, "becas_2020.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "a,b\n1,2\n", string(data))
	assert.Equal(t, ContentTypeCSV, got.ContentType)

	list, err := store.List(ctx, runID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "becas_2020.csv", list[0].Name)
	assert.Equal(t, "procedencia.csv", list[1].Name)

	require.NoError(t, store.Delete(ctx, runID, "procedencia.csv"))
	_, _, err = store.Get(ctx, runID, "procedencia.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, runID, "procedencia.csv"), ErrNotFound)
}

func TestLocalStorageReplace(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	runID := uuid.New()
	_, err = store.Put(ctx, runID, "out.csv", ContentTypeCSV, strings.NewReader("old"))
	require.NoError(t, err)
	_, err = store.Put(ctx, runID, "out.csv", ContentTypeCSV, strings.NewReader("new"))
	require.NoError(t, err)

	rc, _, err := store.Get(ctx, runID, "out.csv")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "new", string(data))

	list, err := store.List(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLocalStorageEmptyRun(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	list, err := store.List(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "__etc_passwd", sanitizeFilename("../etc/passwd"))
	assert.Equal(t, "a_b.csv", sanitizeFilename("a:b.csv"))
	assert.Equal(t, "becas_2020.xlsx", sanitizeFilename("becas_2020.xlsx"))
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(context.Background(), &Config{Type: "ftp"})
	assert.Error(t, err)
}

func TestNewS3Validation(t *testing.T) {
	_, err := NewS3Storage(context.Background(), &Config{Type: StorageTypeS3})
	assert.ErrorContains(t, err, "bucket")

	_, err = NewS3Storage(context.Background(), &Config{Type: StorageTypeS3, S3Bucket: "becas"})
	assert.ErrorContains(t, err, "region")
}

// fakeS3 keeps objects in memory.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), contentTypes: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(f.contentTypes[aws.ToString(in.Key)]),
		LastModified:  aws.Time(time.Now()),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, data := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(data))),
			})
		}
	}
	return out, nil
}

func TestS3Storage(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	store := NewS3StorageWithClient(fake, "becas", "/runs/")

	runID := uuid.New()
	info, err := store.Put(ctx, runID, "becas_2020.csv", ContentTypeCSV, strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "runs/"+runID.String()+"/becas_2020.csv", info.Path)
	assert.Equal(t, int64(4), info.Size)

	_, err = store.Put(ctx, runID, "auditoria.json", ContentTypeJSON, strings.NewReader("{}"))
	require.NoError(t, err)
	_, err = store.Put(ctx, uuid.New(), "other.csv", ContentTypeCSV, strings.NewReader("z"))
	require.NoError(t, err)

	rc, got, err := store.Get(ctx, runID, "becas_2020.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "a,b\n", string(data))
	assert.Equal(t, ContentTypeCSV, got.ContentType)

	list, err := store.List(ctx, runID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "auditoria.json", list[0].Name)
	assert.Equal(t, "becas_2020.csv", list[1].Name)

	require.NoError(t, store.Delete(ctx, runID, "becas_2020.csv"))
	_, _, err = store.Get(ctx, runID, "becas_2020.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}
