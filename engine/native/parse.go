package native

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hupe1980/labelkit/engine"
	"github.com/hupe1980/labelkit/internal/compress"
)

type pairKey struct {
	a, b int32
}

// reference is a parsed reference dataset. ranks holds one row per sample.
type reference struct {
	samples  int
	features int
	labels   int
	ranks    [][]float64
	sample   []int32
	markers  map[pairKey][]int32
}

func decode(data []byte, name string) ([]byte, error) {
	out, _, err := compress.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", engine.ErrInvalidArgument, name, err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", engine.ErrMissingFeatureData, name)
	}
	return out, nil
}

// parseRanks reads a comma separated matrix with one row per sample.
func parseRanks(data []byte) ([][]float64, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.ReuseRecord = true
	r.TrimLeadingSpace = true

	var rows [][]float64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: ranks: %w", engine.ErrDimensionMismatch, err)
			}
			return nil, fmt.Errorf("%w: ranks: %w", engine.ErrInvalidArgument, err)
		}

		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: ranks row %d column %d: %w", engine.ErrInvalidArgument, len(rows), i, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: ranks has no samples", engine.ErrMissingFeatureData)
	}
	return rows, nil
}

// parseLabels reads one label per line and returns the labels and their count.
func parseLabels(data []byte) ([]int32, int, error) {
	var (
		out      []int32
		maxLabel int32 = -1
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil || v < 0 {
			return nil, 0, fmt.Errorf("%w: labels line %d: %q", engine.ErrInvalidArgument, line, text)
		}
		l := int32(v)
		out = append(out, l)
		if l > maxLabel {
			maxLabel = l
		}
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: labels: %w", engine.ErrInvalidArgument, err)
	}
	return out, int(maxLabel) + 1, nil
}

// parseMarkers reads tab separated lines: two label ids followed by feature
// indices in decreasing order of marker strength.
func parseMarkers(data []byte, nLabels, nFeatures int) (map[pairKey][]int32, error) {
	markers := make(map[pairKey][]int32)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), "\r\n ")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: markers line %d: want two label ids", engine.ErrInvalidArgument, line)
		}

		a, err := parseIndex(fields[0], nLabels)
		if err != nil {
			return nil, fmt.Errorf("markers line %d: %w", line, err)
		}
		b, err := parseIndex(fields[1], nLabels)
		if err != nil {
			return nil, fmt.Errorf("markers line %d: %w", line, err)
		}

		feats := make([]int32, 0, len(fields)-2)
		for _, f := range fields[2:] {
			if f == "" {
				continue
			}
			v, err := parseIndex(f, nFeatures)
			if err != nil {
				return nil, fmt.Errorf("markers line %d: %w", line, err)
			}
			feats = append(feats, v)
		}
		markers[pairKey{a, b}] = feats
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: markers: %w", engine.ErrInvalidArgument, err)
	}
	return markers, nil
}

func parseIndex(s string, limit int) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || v < 0 || v >= int64(limit) {
		return 0, fmt.Errorf("%w: index %q outside [0, %d)", engine.ErrInvalidArgument, s, limit)
	}
	return int32(v), nil
}

func parseReference(labelData, markerData, rankData []byte) (*reference, error) {
	labelData, err := decode(labelData, "labels")
	if err != nil {
		return nil, err
	}
	markerData, err = decode(markerData, "markers")
	if err != nil {
		return nil, err
	}
	rankData, err = decode(rankData, "ranks")
	if err != nil {
		return nil, err
	}

	ranks, err := parseRanks(rankData)
	if err != nil {
		return nil, err
	}
	sample, nLabels, err := parseLabels(labelData)
	if err != nil {
		return nil, err
	}
	if len(sample) != len(ranks) {
		return nil, fmt.Errorf("%w: %d labels for %d samples", engine.ErrDimensionMismatch, len(sample), len(ranks))
	}

	nFeatures := len(ranks[0])
	markers, err := parseMarkers(markerData, nLabels, nFeatures)
	if err != nil {
		return nil, err
	}

	return &reference{
		samples:  len(ranks),
		features: nFeatures,
		labels:   nLabels,
		ranks:    ranks,
		sample:   sample,
		markers:  markers,
	}, nil
}
