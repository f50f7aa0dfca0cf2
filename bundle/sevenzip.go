package bundle

import (
	"fmt"

	"github.com/bodgit/sevenzip"
)

// extractFrom7z adds every wanted file of a 7z archive to m
func extractFrom7z(path string, extensions []string, m *memFS) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		err = addEntry(m, f.Name, rc, extensions)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
