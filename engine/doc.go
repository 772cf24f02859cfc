// Package engine defines the boundary to the numeric engine that loads,
// builds and scores references.
//
// The boundary is narrow: typed spans on the foreign heap in,
// opaque handles and scalar shape information out. Engine implementations
// live in subpackages: native runs in process, dylib binds a shared library.
package engine
