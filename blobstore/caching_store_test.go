package blobstore

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBlob struct {
	Blob
	reads     atomic.Int64
	readBytes atomic.Int64
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	n, err := b.Blob.ReadAt(ctx, p, off)
	b.readBytes.Add(int64(n))
	return n, err
}

type countingStore struct {
	*MemoryStore
	blobs map[string]*countingBlob
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore(), blobs: make(map[string]*countingBlob)}
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	cb := &countingBlob{Blob: b}
	s.blobs[name] = cb
	return cb, nil
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	data := testData(1024)

	inner := newCountingStore()
	require.NoError(t, inner.Put(ctx, "test", data))

	store, err := NewCachingStore(inner, 64, 256)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(1024), blob.Size())

	counted := inner.blobs["test"]

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)
	assert.Equal(t, int64(1), counted.reads.Load())
	assert.Equal(t, int64(256), counted.readBytes.Load())

	// Cache hit.
	_, err = blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counted.reads.Load())

	// Spans block 0 (cached) and block 1 (missing).
	buf2 := make([]byte, 100)
	n, err = blob.ReadAt(ctx, buf2, 200)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[200:300], buf2)
	assert.Equal(t, int64(2), counted.reads.Load())
	assert.Equal(t, int64(512), counted.readBytes.Load())

	_, err = blob.ReadAt(ctx, buf2, 260)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counted.reads.Load())
	assert.Equal(t, 2, store.Len())
}

func TestCachingStore_ContiguousRunSingleRead(t *testing.T) {
	ctx := context.Background()
	data := testData(1024)

	inner := newCountingStore()
	require.NoError(t, inner.Put(ctx, "test", data))

	store, err := NewCachingStore(inner, 64, 128)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1024, n)
	assert.Equal(t, data, buf)
	assert.Equal(t, int64(1), inner.blobs["test"].reads.Load())
	assert.Equal(t, 8, store.Len())
}

func TestCachingStore_ShortBlob(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "small", []byte("hello")))

	store, err := NewCachingStore(inner, 8, 256)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "small")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = blob.ReadAt(ctx, buf, 5)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCachingStore_Eviction(t *testing.T) {
	ctx := context.Background()
	data := testData(1024)

	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "test", data))

	store, err := NewCachingStore(inner, 2, 128)
	require.NoError(t, err)

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := blob.ReadAt(ctx, buf, 256)
	require.NoError(t, err)
	assert.Equal(t, 512, n)
	assert.Equal(t, data[256:768], buf)
	assert.LessOrEqual(t, store.Len(), 2)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(ctx, "a", []byte("first")))

	store, err := NewCachingStore(inner, 8, 4)
	require.NoError(t, err)

	got, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	assert.Positive(t, store.Len())

	require.NoError(t, store.Put(ctx, "a", []byte("second")))
	assert.Equal(t, 0, store.Len())

	got, err = ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 0, store.Len())
	_, err = store.Open(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStore_Canceled(t *testing.T) {
	inner := NewMemoryStore()
	require.NoError(t, inner.Put(context.Background(), "a", []byte("data")))

	store, err := NewCachingStore(inner, 8, 0)
	require.NoError(t, err)

	blob, err := store.Open(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = blob.ReadAt(ctx, make([]byte, 4), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewCachingStore_InvalidSize(t *testing.T) {
	_, err := NewCachingStore(NewMemoryStore(), 0, 64)
	assert.Error(t, err)
}
