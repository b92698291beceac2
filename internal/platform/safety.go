package platform

import (
	"os"
	"path/filepath"
	"strings"
)

const devDirName = "casesync-dev"

// IsDevRun reports whether the process runs via `go run` or `go test`.
// Both build their binaries in temporary directories.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}
	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolveStorePath returns the directory the store should use. With forceTemp
// the path is re-rooted under {tmp}/casesync-dev, unless it already lives in
// the temp directory.
func ResolveStorePath(userPath string, forceTemp bool) string {
	if !forceTemp {
		if userPath == "" {
			return "."
		}
		return userPath
	}

	clean := filepath.Clean(userPath)
	tempRoot := os.TempDir()
	if rel, err := filepath.Rel(tempRoot, clean); err == nil && filepath.IsAbs(clean) && !strings.HasPrefix(rel, "..") {
		return clean
	}

	name := filepath.Base(userPath)
	if userPath == "" || name == "." || name == string(os.PathSeparator) {
		name = "default"
	}
	return filepath.Join(tempRoot, devDirName, name)
}
