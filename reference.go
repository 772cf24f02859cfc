package labelkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/labelkit/blobstore"
	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/internal/compress"
	"github.com/hupe1980/labelkit/resource"
)

// Default blob names of a reference bundle.
const (
	ManifestName = "manifest.json"
	RanksName    = "ranks.csv.gz"
	MarkersName  = "markers.gmt.gz"
	LabelsName   = "labels.gz"
)

// LoadedReference is a parsed reference held by the engine.
type LoadedReference struct {
	object
	samples  int
	features int
	labels   int
}

// NumberOfSamples returns the number of reference samples.
func (r *LoadedReference) NumberOfSamples() int { return r.samples }

// NumberOfFeatures returns the number of reference features.
func (r *LoadedReference) NumberOfFeatures() int { return r.features }

// NumberOfLabels returns the number of distinct labels.
func (r *LoadedReference) NumberOfLabels() int { return r.labels }

// Free releases the engine object. Later use fails with ErrInvalidHandle.
func (r *LoadedReference) Free() error { return r.free() }

// LoadReference parses a reference from its serialized parts: ranks (CSV,
// one row per sample), markers (tab separated: two label ids followed by
// feature indices in decreasing strength) and labels (one integer per line).
// Each part may be gzip, zstd or lz4 compressed.
func (s *Session) LoadReference(ctx context.Context, ranks, markers, labels []byte) (ref *LoadedReference, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordLoad(time.Since(start), err)
		s.logger.LogOperation(ctx, "LoadReference", err, "bytes", len(ranks)+len(markers)+len(labels))
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &ref, &err)

	rb, err := scope.Wrap(ranks)
	if err != nil {
		return nil, translateError(err)
	}
	mb, err := scope.Wrap(markers)
	if err != nil {
		return nil, translateError(err)
	}
	lb, err := scope.Wrap(labels)
	if err != nil {
		return nil, translateError(err)
	}

	return s.loadReference(lb, mb, rb)
}

func (s *Session) loadReference(labels, markers, ranks *buffer.Buffer) (*LoadedReference, error) {
	info, err := s.eng.LoadReference(labels.Span(), markers.Span(), ranks.Span())
	if err != nil {
		return nil, translateError(err)
	}
	return &LoadedReference{
		object:   object{s: s, kind: "loaded reference", h: info.Handle},
		samples:  info.Samples,
		features: info.Features,
		labels:   info.Labels,
	}, nil
}

// BundleManifest describes a reference bundle in a blob store. All fields
// are optional; zero counts are not checked.
type BundleManifest struct {
	Name     string `json:"name,omitempty"`
	Ranks    string `json:"ranks,omitempty"`
	Markers  string `json:"markers,omitempty"`
	Labels   string `json:"labels,omitempty"`
	Samples  int    `json:"samples,omitempty"`
	Features int    `json:"features,omitempty"`
	Classes  int    `json:"labels_count,omitempty"`
	Codec    string `json:"codec,omitempty"`
}

func (m *BundleManifest) withDefaults() {
	if m.Ranks == "" {
		m.Ranks = RanksName
	}
	if m.Markers == "" {
		m.Markers = MarkersName
	}
	if m.Labels == "" {
		m.Labels = LabelsName
	}
}

// LoadReferenceFromStore loads the reference bundle stored under prefix.
// A manifest.json is read when present; otherwise the default blob names are
// used. Blob reads are rate limited by the session's IO limit and land
// directly in foreign buffers.
func (s *Session) LoadReferenceFromStore(ctx context.Context, store blobstore.BlobStore, prefix string) (ref *LoadedReference, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordLoad(time.Since(start), err)
		s.logger.LogOperation(ctx, "LoadReferenceFromStore", err, "prefix", prefix)
	}()

	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	manifest, err := s.readManifest(ctx, store, prefix)
	if err != nil {
		return nil, err
	}

	scope := s.reg.NewScope()
	defer closeScopeOwning(scope, &ref, &err)

	var parts [3]*buffer.Buffer
	for i, name := range []string{manifest.Ranks, manifest.Markers, manifest.Labels} {
		if parts[i], err = s.readBlob(ctx, scope, store, path.Join(prefix, name)); err != nil {
			return nil, err
		}
	}

	ref, err = s.loadReference(parts[2], parts[1], parts[0])
	if err != nil {
		return nil, err
	}

	if err := manifest.check(ref); err != nil {
		return nil, errors.Join(err, ref.Free())
	}
	return ref, nil
}

func (m *BundleManifest) check(ref *LoadedReference) error {
	const call = "LoadReferenceFromStore"
	if m.Samples != 0 && m.Samples != ref.samples {
		return mismatch(call, "manifest samples", m.Samples, ref.samples)
	}
	if m.Features != 0 && m.Features != ref.features {
		return mismatch(call, "manifest features", m.Features, ref.features)
	}
	if m.Classes != 0 && m.Classes != ref.labels {
		return mismatch(call, "manifest labels", m.Classes, ref.labels)
	}
	return nil
}

func (s *Session) readManifest(ctx context.Context, store blobstore.BlobStore, prefix string) (*BundleManifest, error) {
	var m BundleManifest
	data, err := blobstore.ReadAll(ctx, store, path.Join(prefix, ManifestName))
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if err := s.codec.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: manifest: %w", ErrInvalidArgument, err)
		}
	}
	m.withDefaults()
	return &m, nil
}

// readBlob copies a blob into a new Uint8 buffer owned by scope.
func (s *Session) readBlob(ctx context.Context, scope *buffer.Scope, store blobstore.BlobStore, name string) (*buffer.Buffer, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrMissingFeatureData, name, err)
		}
		return nil, err
	}
	defer blob.Close()

	buf, err := scope.Acquire(buffer.Uint8, int(blob.Size()))
	if err != nil {
		return nil, translateError(err)
	}

	r := resource.NewRateLimitedReader(ctx, blobstore.NewReader(ctx, blob), s.rc)
	if _, err := io.ReadFull(r, buf.Uint8s()); err != nil {
		return nil, fmt.Errorf("labelkit: read %s: %w", name, err)
	}
	return buf, nil
}

// ReferenceBundle holds the serialized parts of a reference.
type ReferenceBundle struct {
	Name    string
	Ranks   []byte
	Markers []byte
	Labels  []byte
}

// SaveReferenceBundle writes bundle under prefix, plus a manifest encoded
// with the session codec. Uncompressed parts are gzip compressed and stored
// under their default names; parts that are already zstd or lz4 compressed
// are stored as is, with the default name's suffix swapped accordingly. The
// manifest records the names used. Counts in the manifest are taken from a
// trial load, so a bundle that the engine cannot parse is never written.
func (s *Session) SaveReferenceBundle(ctx context.Context, store blobstore.BlobStore, prefix string, bundle ReferenceBundle) error {
	ref, err := s.LoadReference(ctx, bundle.Ranks, bundle.Markers, bundle.Labels)
	if err != nil {
		return err
	}
	manifest := BundleManifest{
		Name:     bundle.Name,
		Samples:  ref.NumberOfSamples(),
		Features: ref.NumberOfFeatures(),
		Classes:  ref.NumberOfLabels(),
		Codec:    s.codec.Name(),
	}
	if err := ref.Free(); err != nil {
		return err
	}
	manifest.withDefaults()

	for _, part := range []struct {
		name *string
		data []byte
	}{
		{&manifest.Ranks, bundle.Ranks},
		{&manifest.Markers, bundle.Markers},
		{&manifest.Labels, bundle.Labels},
	} {
		data, codec := part.data, compress.Detect(part.data)
		if codec == compress.None {
			if data, err = compress.Compress(part.data, compress.Gzip); err != nil {
				return err
			}
			codec = compress.Gzip
		}
		*part.name = strings.TrimSuffix(*part.name, compress.Gzip.Extension()) + codec.Extension()
		if err := store.Put(ctx, path.Join(prefix, *part.name), data); err != nil {
			return err
		}
	}

	data, err := s.codec.Marshal(manifest)
	if err != nil {
		return err
	}
	return store.Put(ctx, path.Join(prefix, ManifestName), data)
}

