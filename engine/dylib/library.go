package dylib

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// EnvLibraryPath overrides the library search when set.
const EnvLibraryPath = "LABELKIT_ENGINE_LIB"

// ErrLibraryNotFound is returned when no engine library can be located.
var ErrLibraryNotFound = errors.New("dylib: engine library not found")

func findLibrary(extra []string) string {
	if p := os.Getenv(EnvLibraryPath); p != "" {
		if fileExists(p) {
			return p
		}
		return ""
	}
	for _, path := range buildSearchPaths(extra) {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func buildSearchPaths(extra []string) []string {
	paths := make([]string, 0, len(extra)+6)
	for _, dir := range extra {
		paths = append(paths, filepath.Join(dir, libraryName()))
	}
	if dir := dataDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, "lib", libraryName()))
	}
	paths = append(paths,
		"/usr/local/lib/"+libraryName(),
		"/usr/lib/"+libraryName(),
	)

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths, "/opt/homebrew/lib/"+libraryName())
	case "linux":
		paths = append(paths,
			"/usr/lib/x86_64-linux-gnu/"+libraryName(),
			"/usr/lib/aarch64-linux-gnu/"+libraryName(),
		)
	}
	return paths
}

func libraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libsinglepp_c.dylib"
	case "windows":
		return "singlepp_c.dll"
	default:
		return "libsinglepp_c.so"
	}
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "labelkit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "labelkit")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "labelkit", "data")
		}
		return filepath.Join(home, "AppData", "Roaming", "labelkit", "data")
	default:
		return filepath.Join(home, ".local", "share", "labelkit")
	}
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
