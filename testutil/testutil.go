package testutil

import (
	"bytes"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// ReferenceConfig shapes a synthetic reference. Zero fields take defaults.
type ReferenceConfig struct {
	// Labels is the number of labels (default 3).
	Labels int
	// SamplesPerLabel is the number of reference samples per label (default 4).
	SamplesPerLabel int
	// MarkersPerLabel is the size of each label's marker block (default 5).
	MarkersPerLabel int
	// Background is the number of features that mark no label (default 10,
	// negative for none).
	Background int
	// Noise is the standard deviation of the gaussian noise added to every
	// value (default 1).
	Noise float64
}

func (c ReferenceConfig) withDefaults() ReferenceConfig {
	if c.Labels <= 0 {
		c.Labels = 3
	}
	if c.SamplesPerLabel <= 0 {
		c.SamplesPerLabel = 4
	}
	if c.MarkersPerLabel <= 0 {
		c.MarkersPerLabel = 5
	}
	if c.Background < 0 {
		c.Background = 0
	} else if c.Background == 0 {
		c.Background = 10
	}
	if c.Noise <= 0 {
		c.Noise = 1
	}
	return c
}

// Reference is a serialized synthetic reference together with the profiles
// it was sampled from.
type Reference struct {
	// Ranks, Markers and Labels are the serialized reference parts.
	Ranks   []byte
	Markers []byte
	Labels  []byte

	// Features names every reference feature.
	Features []string
	// Profiles holds the mean expression of every label, per feature.
	Profiles [][]float64
	// Samples is the number of reference samples.
	Samples int

	noise float64
}

// NumberOfLabels returns the number of labels.
func (ref *Reference) NumberOfLabels() int { return len(ref.Profiles) }

// Reference generates a synthetic reference.
func (r *RNG) Reference(cfg ReferenceConfig) *Reference {
	cfg = cfg.withDefaults()
	nFeatures := cfg.Labels*cfg.MarkersPerLabel + cfg.Background

	ref := &Reference{
		Features: FeatureNames("G", nFeatures),
		Profiles: make([][]float64, cfg.Labels),
		Samples:  cfg.Labels * cfg.SamplesPerLabel,
		noise:    cfg.Noise,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for l := range cfg.Labels {
		p := make([]float64, nFeatures)
		for f := range p {
			p[f] = 1 + r.rand.Float64()
		}
		// Marker strength decreases along the block.
		for i := range cfg.MarkersPerLabel {
			p[l*cfg.MarkersPerLabel+i] = 12 - 4*float64(i)/float64(cfg.MarkersPerLabel)
		}
		ref.Profiles[l] = p
	}

	var ranks, labels, markers bytes.Buffer
	for l := range cfg.Labels {
		for range cfg.SamplesPerLabel {
			for f, v := range ref.Profiles[l] {
				if f > 0 {
					ranks.WriteByte(',')
				}
				ranks.WriteString(strconv.FormatFloat(v+r.rand.NormFloat64()*cfg.Noise, 'f', 4, 64))
			}
			ranks.WriteByte('\n')
			fmt.Fprintf(&labels, "%d\n", l)
		}
	}

	for a := range cfg.Labels {
		for b := range cfg.Labels {
			if a == b {
				continue
			}
			fmt.Fprintf(&markers, "%d\t%d", a, b)
			for i := range cfg.MarkersPerLabel {
				fmt.Fprintf(&markers, "\t%d", a*cfg.MarkersPerLabel+i)
			}
			markers.WriteByte('\n')
		}
	}

	ref.Ranks = ranks.Bytes()
	ref.Labels = labels.Bytes()
	ref.Markers = markers.Bytes()
	return ref
}

// Assignments draws n labels uniformly from [0, labels).
func (r *RNG) Assignments(n, labels int) []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int32, n)
	for i := range out {
		out[i] = int32(r.rand.Intn(labels)) //nolint:gosec // bounded by labels
	}
	return out
}

// Cells samples one cell per entry of truth from the profile of that label.
// The result is column-major with one row per reference feature.
func (r *RNG) Cells(ref *Reference, truth []int32) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	nFeatures := len(ref.Features)
	out := make([]float64, 0, nFeatures*len(truth))
	for _, l := range truth {
		for _, v := range ref.Profiles[l] {
			out = append(out, v+r.rand.NormFloat64()*ref.noise)
		}
	}
	return out
}

// FeatureNames returns n identifiers prefix0, prefix1, ...
func FeatureNames(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + strconv.Itoa(i)
	}
	return out
}

// PermuteRows reorders the rows of a column-major matrix with nRows rows so
// that row i of the result is row perm[i] of values.
func PermuteRows(values []float64, nRows int, perm []int) []float64 {
	out := make([]float64, 0, len(perm)*(len(values)/max(nRows, 1)))
	for c := 0; c+nRows <= len(values); c += nRows {
		col := values[c : c+nRows]
		for _, i := range perm {
			out = append(out, col[i])
		}
	}
	return out
}

// PermuteStrings returns ids reordered by perm.
func PermuteStrings(ids []string, perm []int) []string {
	out := make([]string, len(perm))
	for i, j := range perm {
		out[i] = ids[j]
	}
	return out
}

// Accuracy returns the fraction of positions where predicted equals truth.
func Accuracy(predicted, truth []int32) float64 {
	if len(truth) == 0 || len(predicted) != len(truth) {
		return 0
	}
	hits := 0
	for i := range truth {
		if predicted[i] == truth[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}
