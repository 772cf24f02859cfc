package blobstore

import (
	"context"
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

type blockKey struct {
	name  string
	block int64
}

// CachingStore wraps a BlobStore and adds block-level LRU caching of reads.
// Blobs are immutable, so cached blocks stay valid until the blob is
// replaced or deleted through the CachingStore.
type CachingStore struct {
	inner     BlobStore
	cache     *lru.Cache[blockKey, []byte]
	blockSize int64
}

// NewCachingStore creates a new CachingStore holding up to maxBlocks blocks.
// blockSize defaults to 64KB if <= 0.
func NewCachingStore(inner BlobStore, maxBlocks int, blockSize int64) (*CachingStore, error) {
	if blockSize <= 0 {
		blockSize = 64 * 1024
	}
	c, err := lru.New[blockKey, []byte](maxBlocks)
	if err != nil {
		return nil, err
	}
	return &CachingStore{
		inner:     inner,
		cache:     c,
		blockSize: blockSize,
	}, nil
}

// Open opens a blob whose reads go through the cache.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &CachingBlob{
		inner:     b,
		cache:     s.cache,
		name:      name,
		blockSize: s.blockSize,
	}, nil
}

// Put writes through and drops cached blocks of the blob.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete deletes through and drops cached blocks of the blob.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List delegates to the wrapped store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Len returns the number of cached blocks.
func (s *CachingStore) Len() int {
	return s.cache.Len()
}

func (s *CachingStore) invalidate(name string) {
	for _, k := range s.cache.Keys() {
		if k.name == name {
			s.cache.Remove(k)
		}
	}
}

// CachingBlob wraps a Blob and uses the block cache for reads.
type CachingBlob struct {
	inner     Blob
	cache     *lru.Cache[blockKey, []byte]
	name      string
	blockSize int64
}

// Close closes the wrapped blob.
func (b *CachingBlob) Close() error {
	return b.inner.Close()
}

// Size returns the size of the wrapped blob.
func (b *CachingBlob) Size() int64 {
	return b.inner.Size()
}

// ReadAt serves the request from cached blocks, loading missing runs of
// blocks from the wrapped blob first.
func (b *CachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}

	want := p
	if off+int64(len(p)) > size {
		want = p[:size-off]
	}

	startBlock := off / b.blockSize
	endBlock := (off + int64(len(want)) - 1) / b.blockSize

	if err := b.fillCache(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	totalRead := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		blkStart := blk * b.blockSize
		intersectStart := max(blkStart, off)
		intersectEnd := min(blkStart+b.blockSize, off+int64(len(want)))

		blockData, err := b.fetchBlock(ctx, blk)
		if err != nil {
			return totalRead, err
		}

		srcOffset := intersectStart - blkStart
		if srcOffset >= int64(len(blockData)) {
			break
		}
		dstOffset := intersectStart - off
		n := copy(want[dstOffset:intersectEnd-off], blockData[srcOffset:])
		totalRead += n
	}

	if totalRead < len(p) {
		return totalRead, io.EOF
	}
	return totalRead, nil
}

// fillCache loads missing blocks in [startBlock, endBlock], one backend read
// per contiguous run.
func (b *CachingBlob) fillCache(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }

	var missing []run
	for blk := startBlock; blk <= endBlock; blk++ {
		if b.cache.Contains(blockKey{b.name, blk}) {
			continue
		}
		if n := len(missing); n > 0 && missing[n-1].start+missing[n-1].count == blk {
			missing[n-1].count++
			continue
		}
		missing = append(missing, run{blk, 1})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	fileSize := b.Size()
	for _, r := range missing {
		g.Go(func() error {
			byteStart := r.start * b.blockSize
			byteSize := min(r.count*b.blockSize, fileSize-byteStart)
			if byteSize <= 0 {
				return nil
			}

			buf := make([]byte, byteSize)
			n, err := b.inner.ReadAt(ctx, buf, byteStart)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}

			for i := int64(0); i < r.count; i++ {
				lo := i * b.blockSize
				if lo >= int64(n) {
					break
				}
				hi := min(lo+b.blockSize, int64(n))
				// Copy so a cached block does not pin the whole run.
				b.cache.Add(blockKey{b.name, r.start + i}, append([]byte(nil), buf[lo:hi]...))
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchBlock returns one block, reading it directly if it was evicted
// between fillCache and use.
func (b *CachingBlob) fetchBlock(ctx context.Context, blk int64) ([]byte, error) {
	key := blockKey{b.name, blk}
	if data, ok := b.cache.Get(key); ok {
		return data, nil
	}

	buf := make([]byte, b.blockSize)
	n, err := b.inner.ReadAt(ctx, buf, blk*b.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n > 0 {
		b.cache.Add(key, buf[:n])
	}
	return buf[:n], nil
}
