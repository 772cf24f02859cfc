// Package feature implements the feature index: the shared mapping from
// dataset-specific feature identifiers (typically gene names) to the global
// columns used at the engine boundary.
//
// The primary dataset seeds the index with BuildPrimary. Each reference is
// then harmonized against it with HarmonizeSecondary, which extends the index
// with identifiers the primary does not have. Columns below the primary's
// Len are shared with the primary; columns at or above it are reference-only.
package feature
