// Package testutil generates synthetic references and expression data for
// tests and benchmarks.
//
// Every label of a synthetic reference has a block of marker features that
// are expressed highly in its samples and at background level elsewhere, so a
// correct classifier recovers the label of a generated cell:
//
//	rng := testutil.NewRNG(seed)
//	ref := rng.Reference(testutil.ReferenceConfig{Labels: 4})
//	truth := rng.Assignments(100, 4)
//	values := rng.Cells(ref, truth) // column-major, len(ref.Features) rows
//
// # Accuracy
//
//	acc := testutil.Accuracy(predicted, truth)
package testutil
