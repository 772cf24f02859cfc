//go:build !windows

package dylib

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/labelkit/buffer"
	"github.com/hupe1980/labelkit/engine"
)

func TestLibraryName(t *testing.T) {
	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, "libsinglepp_c.dylib", libraryName())
	case "windows":
		assert.Equal(t, "singlepp_c.dll", libraryName())
	default:
		assert.Equal(t, "libsinglepp_c.so", libraryName())
	}
}

func TestBuildSearchPaths(t *testing.T) {
	paths := buildSearchPaths([]string{"/opt/labelkit"})
	require.NotEmpty(t, paths)

	assert.Equal(t, filepath.Join("/opt/labelkit", libraryName()), paths[0])
	assert.Contains(t, paths, "/usr/local/lib/"+libraryName())
	assert.Contains(t, paths, "/usr/lib/"+libraryName())
}

func TestDataDir_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", "labelkit"), dataDir())
}

func TestFindLibrary_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "engine.so")
	require.NoError(t, os.WriteFile(lib, []byte("not a library"), 0o600))

	t.Setenv(EnvLibraryPath, lib)
	assert.Equal(t, lib, findLibrary(nil))

	t.Setenv(EnvLibraryPath, filepath.Join(dir, "missing.so"))
	assert.Empty(t, findLibrary(nil))
}

func TestFindLibrary_SearchDirs(t *testing.T) {
	t.Setenv(EnvLibraryPath, "")
	dir := t.TempDir()
	lib := filepath.Join(dir, libraryName())
	require.NoError(t, os.WriteFile(lib, nil, 0o600))

	assert.Equal(t, lib, findLibrary([]string{dir}))
}

func TestOpen_NotFound(t *testing.T) {
	t.Setenv(EnvLibraryPath, filepath.Join(t.TempDir(), "missing.so"))

	_, err := Open(Options{})
	require.ErrorIs(t, err, ErrLibraryNotFound)
}

func TestOpen_InvalidLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), libraryName())
	require.NoError(t, os.WriteFile(lib, []byte("not a library"), 0o600))

	_, err := Open(Options{Path: lib})
	require.Error(t, err)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int32
		want   error
	}{
		{statusInvalidHandle, engine.ErrInvalidHandle},
		{statusMissingFeatureData, engine.ErrMissingFeatureData},
		{statusAllocationFailure, engine.ErrAllocationFailure},
		{statusInvalidArgument, engine.ErrInvalidArgument},
		{statusDimensionMismatch, engine.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		err := statusError("op", tt.status, "detail")
		require.ErrorIs(t, err, tt.want)
		assert.Contains(t, err.Error(), "detail")
	}

	require.NoError(t, statusError("op", statusOK, ""))
	assert.Contains(t, statusError("op", 99, "").Error(), "unknown status 99")
}

func TestGoString(t *testing.T) {
	assert.Empty(t, goString(nil))

	raw := []byte("invalid handle\x00trailing")
	assert.Equal(t, "invalid handle", goString(&raw[0]))
}

func TestArgumentChecks(t *testing.T) {
	_, err := int32Arg("n", -1)
	require.ErrorIs(t, err, engine.ErrInvalidArgument)

	v, err := int32Arg("n", 42)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	require.ErrorIs(t, requireType(buffer.Span{Type: buffer.Uint8}, buffer.Int32, "ids"), engine.ErrInvalidArgument)
	require.NoError(t, requireType(buffer.Span{Type: buffer.Int32}, buffer.Int32, "ids"))
}

// The argument checks run before any library symbol is called, so an engine
// without a loaded library is enough here.
func TestShapeChecks(t *testing.T) {
	e := &Engine{}
	table := buffer.Span{Type: buffer.Uint64, Len: 2}

	_, err := e.BuildReference(4, buffer.Span{Type: buffer.Int32, Len: 3}, 1, buffer.Span{Type: buffer.Int32, Len: 4}, 1)
	require.ErrorIs(t, err, engine.ErrDimensionMismatch)

	_, err = e.IntegrateReferences(4, buffer.Span{Type: buffer.Int32, Len: 3}, table, table, table)
	require.ErrorIs(t, err, engine.ErrDimensionMismatch)

	_, err = e.IntegrateReferences(4, buffer.Span{Type: buffer.Int32, Len: 4}, table, buffer.Span{Type: buffer.Uint64, Len: 1}, table)
	require.ErrorIs(t, err, engine.ErrDimensionMismatch)

	_, err = e.IntegrateReferences(4, buffer.Span{Type: buffer.Uint8, Len: 4}, table, table, table)
	require.ErrorIs(t, err, engine.ErrInvalidArgument)
}

func TestClosedEngine(t *testing.T) {
	e := &Engine{closed: true}

	require.ErrorIs(t, e.Free(1), engine.ErrClosed)
	_, err := e.NewDenseMatrix(1, 1, buffer.Span{Type: buffer.Float64, Len: 1})
	require.ErrorIs(t, err, engine.ErrClosed)
	require.NoError(t, e.Close())
}
