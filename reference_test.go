package labelkit

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/labelkit/blobstore"
	"github.com/hupe1980/labelkit/codec"
	"github.com/hupe1980/labelkit/internal/compress"
)

func bundleOf(name string, d refData) ReferenceBundle {
	return ReferenceBundle{
		Name:    name,
		Ranks:   []byte(d.ranks),
		Markers: []byte(d.markers),
		Labels:  []byte(d.labels),
	}
}

func TestReferenceBundle_RoundTrip(t *testing.T) {
	ctx := context.Background()

	caching, err := blobstore.NewCachingStore(blobstore.NewMemoryStore(), 16, 32)
	require.NoError(t, err)

	stores := map[string]blobstore.BlobStore{
		"memory":  blobstore.NewMemoryStore(),
		"local":   blobstore.NewLocalStore(t.TempDir()),
		"caching": caching,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			f.noLeak(0, func() {
				require.NoError(t, f.s.SaveReferenceBundle(ctx, store, "refs/a", bundleOf("a", refA)))
			})

			names, err := store.List(ctx, "refs/a")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				"refs/a/" + ManifestName,
				"refs/a/" + RanksName,
				"refs/a/" + MarkersName,
				"refs/a/" + LabelsName,
			}, names)

			ranks, err := blobstore.ReadAll(ctx, store, path.Join("refs/a", RanksName))
			require.NoError(t, err)
			assert.Equal(t, compress.Gzip, compress.Detect(ranks))

			data, err := blobstore.ReadAll(ctx, store, path.Join("refs/a", ManifestName))
			require.NoError(t, err)
			var m BundleManifest
			require.NoError(t, codec.Default.Unmarshal(data, &m))
			assert.Equal(t, "a", m.Name)
			assert.Equal(t, 4, m.Samples)
			assert.Equal(t, 4, m.Features)
			assert.Equal(t, 2, m.Classes)

			var ref *LoadedReference
			f.noLeak(1, func() {
				ref, err = f.s.LoadReferenceFromStore(ctx, store, "refs/a")
				require.NoError(t, err)
			})
			assert.Equal(t, 4, ref.NumberOfSamples())
			assert.Equal(t, 2, ref.NumberOfLabels())

			labels, err := f.s.ClassifyCells(ctx, DenseInputFromHost(cells, 4, 2), f.build(ref))
			require.NoError(t, err)
			assert.Equal(t, []int32{0, 1}, labels)
		})
	}
}

func TestLoadReferenceFromStore_WithoutManifest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	require.NoError(t, store.Put(ctx, "b/"+RanksName, []byte(refB.ranks)))
	require.NoError(t, store.Put(ctx, "b/"+MarkersName, []byte(refB.markers)))
	require.NoError(t, store.Put(ctx, "b/"+LabelsName, []byte(refB.labels)))

	ref, err := f.s.LoadReferenceFromStore(ctx, store, "b")
	require.NoError(t, err)
	assert.Equal(t, 4, ref.NumberOfFeatures())
}

func TestLoadReferenceFromStore_CustomNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	require.NoError(t, store.Put(ctx, "c/r.csv", []byte(refA.ranks)))
	require.NoError(t, store.Put(ctx, "c/m.gmt", []byte(refA.markers)))
	require.NoError(t, store.Put(ctx, "c/l.txt", []byte(refA.labels)))
	require.NoError(t, store.Put(ctx, "c/"+ManifestName, []byte(`{"ranks":"r.csv","markers":"m.gmt","labels":"l.txt","samples":4}`)))

	ref, err := f.s.LoadReferenceFromStore(ctx, store, "c")
	require.NoError(t, err)
	assert.Equal(t, 4, ref.NumberOfSamples())
}

func TestSaveReferenceBundle_PrecompressedParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	markers, err := compress.Compress([]byte(refA.markers), compress.Zstd)
	require.NoError(t, err)
	labels, err := compress.Compress([]byte(refA.labels), compress.LZ4)
	require.NoError(t, err)
	ranks, err := compress.Compress([]byte(refA.ranks), compress.Gzip)
	require.NoError(t, err)

	bundle := ReferenceBundle{Name: "a", Ranks: ranks, Markers: markers, Labels: labels}
	require.NoError(t, f.s.SaveReferenceBundle(ctx, store, "z", bundle))

	names, err := store.List(ctx, "z")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"z/" + ManifestName,
		"z/" + RanksName,
		"z/markers.gmt.zst",
		"z/labels.lz4",
	}, names)

	for name, want := range map[string]compress.Codec{
		RanksName:         compress.Gzip,
		"markers.gmt.zst": compress.Zstd,
		"labels.lz4":      compress.LZ4,
	} {
		data, err := blobstore.ReadAll(ctx, store, path.Join("z", name))
		require.NoError(t, err)
		assert.Equal(t, want, compress.Detect(data), name)
	}

	data, err := blobstore.ReadAll(ctx, store, path.Join("z", ManifestName))
	require.NoError(t, err)
	var m BundleManifest
	require.NoError(t, f.s.codec.Unmarshal(data, &m))
	assert.Equal(t, RanksName, m.Ranks)
	assert.Equal(t, "markers.gmt.zst", m.Markers)
	assert.Equal(t, "labels.lz4", m.Labels)

	f.noLeak(1, func() {
		ref, err := f.s.LoadReferenceFromStore(ctx, store, "z")
		require.NoError(t, err)
		assert.Equal(t, 4, ref.NumberOfSamples())
	})
}

func TestLoadReferenceFromStore_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, f.s.SaveReferenceBundle(ctx, store, "a", bundleOf("a", refA)))

	t.Run("MissingBlob", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "a/"+MarkersName))
		defer func() {
			require.NoError(t, f.s.SaveReferenceBundle(ctx, store, "a", bundleOf("a", refA)))
		}()

		f.noLeak(0, func() {
			_, err := f.s.LoadReferenceFromStore(ctx, store, "a")
			assert.ErrorIs(t, err, ErrMissingFeatureData)
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		})
	})

	t.Run("ManifestMismatch", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/"+ManifestName, []byte(`{"samples":99}`)))

		f.noLeak(0, func() {
			_, err := f.s.LoadReferenceFromStore(ctx, store, "a")
			require.ErrorIs(t, err, ErrDimensionMismatch)
			var dm *DimensionMismatchError
			require.ErrorAs(t, err, &dm)
			assert.Equal(t, "manifest samples", dm.Argument)
			assert.Equal(t, 99, dm.Expected)
			assert.Equal(t, 4, dm.Actual)
		})
	})

	t.Run("BadManifest", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/"+ManifestName, []byte(`{`)))

		_, err := f.s.LoadReferenceFromStore(ctx, store, "a")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("UnparsableBundle", func(t *testing.T) {
		err := f.s.SaveReferenceBundle(ctx, store, "bad", ReferenceBundle{Ranks: []byte(refA.ranks)})
		assert.ErrorIs(t, err, ErrMissingFeatureData)

		names, err := store.List(ctx, "bad")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}
