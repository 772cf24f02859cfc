// Package native is an in-process engine.Engine written in Go.
//
// It parses serialized references, builds marker-restricted references
// against a primary feature space, and scores cells by the quantile of their
// Spearman correlations to each label's reference samples. Scoring is spread
// over a bounded number of goroutines within a call; every call returns only
// once all of them are done.
//
// Ties between labels, and between references during integration, go to the
// lowest index.
package native
