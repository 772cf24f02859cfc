// Package compress detects and decodes the compression formats accepted for
// serialized reference data: gzip, zstd and LZ4 frames.
package compress
