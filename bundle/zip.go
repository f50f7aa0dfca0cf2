package bundle

import (
	"archive/zip"
	"fmt"
)

// extractFromZIP adds every wanted file of a ZIP archive to m
func extractFromZIP(path string, extensions []string, m *memFS) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
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
