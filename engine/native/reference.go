package native

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

// built is a reference restricted to a primary feature space. rows[i] is the
// primary row holding selected feature i; ranks are re-ranked over the
// selection.
type built struct {
	nFeatures int
	scorer
	rows   []int32
	global *roaring.Bitmap
}

// LoadReference parses a serialized reference. Compressed inputs are
// decompressed first.
func (e *Engine) LoadReference(labels, markers, ranks buffer.Span) (engine.ReferenceInfo, error) {
	lb, err := e.bytes(labels, buffer.Uint8, -1, "labels")
	if err != nil {
		return engine.ReferenceInfo{}, err
	}
	mb, err := e.bytes(markers, buffer.Uint8, -1, "markers")
	if err != nil {
		return engine.ReferenceInfo{}, err
	}
	rb, err := e.bytes(ranks, buffer.Uint8, -1, "ranks")
	if err != nil {
		return engine.ReferenceInfo{}, err
	}

	ref, err := parseReference(lb, mb, rb)
	if err != nil {
		return engine.ReferenceInfo{}, err
	}

	h, err := e.put(ref)
	if err != nil {
		return engine.ReferenceInfo{}, err
	}
	return engine.ReferenceInfo{
		Handle:   h,
		Samples:  ref.samples,
		Features: ref.features,
		Labels:   ref.labels,
	}, nil
}

// BuildReference selects, for every ordered pair of labels, the leading top
// markers that the reference shares with the primary dataset and keeps the
// union of them. Pairs with fewer shared markers contribute all they have. If
// no pair contributes anything, every shared feature is kept.
func (e *Engine) BuildReference(nFeatures int, primaryIDs buffer.Span, loaded engine.Handle, refIDs buffer.Span, top int) (engine.BuiltInfo, error) {
	if top <= 0 {
		return engine.BuiltInfo{}, fmt.Errorf("%w: top must be positive, got %d", engine.ErrInvalidArgument, top)
	}

	ref, err := lookup[*reference](e, loaded)
	if err != nil {
		return engine.BuiltInfo{}, err
	}
	pids, err := e.int32s(primaryIDs, nFeatures, "primary ids")
	if err != nil {
		return engine.BuiltInfo{}, err
	}
	rids, err := e.int32s(refIDs, ref.features, "reference ids")
	if err != nil {
		return engine.BuiltInfo{}, err
	}

	primary, err := newPrimarySpace(pids)
	if err != nil {
		return engine.BuiltInfo{}, err
	}

	shared := roaring.New()
	for f, id := range rids {
		if id < 0 {
			return engine.BuiltInfo{}, fmt.Errorf("%w: negative id at reference feature %d", engine.ErrInvalidArgument, f)
		}
		if primary.contains(id) {
			shared.Add(uint32(f))
		}
	}

	selected := roaring.New()
	for a := range int32(ref.labels) {
		for b := range int32(ref.labels) {
			if a == b {
				continue
			}
			taken := 0
			for _, f := range ref.markers[pairKey{a, b}] {
				if taken == top {
					break
				}
				if shared.Contains(uint32(f)) {
					selected.Add(uint32(f))
					taken++
				}
			}
		}
	}
	if selected.IsEmpty() {
		selected = shared
	}

	feats := make([]int32, 0, selected.GetCardinality())
	rows := make([]int32, 0, selected.GetCardinality())
	global := roaring.New()
	it := selected.Iterator()
	for it.HasNext() {
		f := int32(it.Next())
		id := rids[f]
		feats = append(feats, f)
		rows = append(rows, primary.rows[id])
		global.Add(uint32(id))
	}

	b := &built{
		nFeatures: nFeatures,
		scorer:    newScorer(ref, feats),
		rows:      rows,
		global:    global,
	}

	h, err := e.put(b)
	if err != nil {
		return engine.BuiltInfo{}, err
	}
	return engine.BuiltInfo{Handle: h, SharedFeatures: int(shared.GetCardinality())}, nil
}

// primarySpace maps global feature ids to the first primary row holding them.
type primarySpace struct {
	ids  *roaring.Bitmap
	rows map[int32]int32
}

func newPrimarySpace(pids []int32) (*primarySpace, error) {
	p := &primarySpace{
		ids:  roaring.New(),
		rows: make(map[int32]int32, len(pids)),
	}
	for row, id := range pids {
		if id < 0 {
			return nil, fmt.Errorf("%w: negative id at primary row %d", engine.ErrInvalidArgument, row)
		}
		if _, ok := p.rows[id]; !ok {
			p.rows[id] = int32(row) //nolint:gosec // row < len(pids) <= MaxInt32
		}
		p.ids.Add(uint32(id))
	}
	return p, nil
}

func (p *primarySpace) contains(id int32) bool {
	return p.ids.Contains(uint32(id))
}
