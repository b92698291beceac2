package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempFilePrefix marks in-progress collection writes. Keys skips them.
const TempFilePrefix = "casesync-tmp-"

// replaceFile swaps the collection file at path for data.
//
// The new bytes are staged next to the target, flushed to disk and renamed
// over it; the directory is synced last so the rename itself survives a
// power loss. Readers see the old collection or the new one.
func replaceFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)

	staged, err := os.CreateTemp(dir, TempFilePrefix+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("stage collection: %w", err)
	}
	stagedName := staged.Name()
	defer func() {
		if err != nil {
			os.Remove(stagedName)
		}
	}()

	if _, err = staged.Write(data); err == nil {
		err = staged.Sync()
	}
	if cerr := staged.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write staged collection: %w", err)
	}

	if err = os.Chmod(stagedName, 0644); err != nil {
		return fmt.Errorf("chmod staged collection: %w", err)
	}
	if err = os.Rename(stagedName, path); err != nil {
		return fmt.Errorf("commit collection: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes directory metadata. Some platforms cannot open a
// directory for syncing; the rename has still happened there.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
