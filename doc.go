// Package labelkit transfers cell-type labels from annotated reference
// datasets to new single-cell data.
//
// The numeric work happens in a compute engine behind engine.Engine. This
// package keeps feature spaces consistent across datasets and moves typed
// arrays across the engine boundary without leaking or reusing them.
//
// # Quick Start
//
//	ctx := context.Background()
//	s := labelkit.New()
//	defer s.Close()
//
//	ref, _ := s.LoadReference(ctx, ranks, markers, labels)
//	defer ref.Free()
//
//	built, _ := s.BuildReference(ctx, cellFeatures, ref, refFeatures, labelkit.WithTop(20))
//	defer built.Free()
//
//	best, _ := s.ClassifyCells(ctx, labelkit.DenseInputFromHost(values, len(cellFeatures), nCells), built)
//
// # Several References
//
// Classify against each reference first, then let the integrated set decide
// which reference fits every cell best:
//
//	set, _ := s.IntegrateReferences(ctx, cellFeatures, refs, refFeatures, builts)
//	winners, _ := s.IntegrateCellLabels(ctx, input, assigned, set)
//	labels, _ := labelkit.ResolveLabels(winners, assigned)
//
// # Buffer Lifetimes
//
// Every operation opens a buffer.Scope and closes it on return, after the
// engine call that used its buffers. Registry().Live() is the same before and
// after any operation, whether it succeeds or fails.
//
// # Reference Bundles
//
// References can be stored as bundles of compressed parts in any
// blobstore.BlobStore (local files, memory, S3, MinIO) and loaded with
// LoadReferenceFromStore.
package labelkit
