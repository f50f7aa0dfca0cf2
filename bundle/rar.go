package bundle

import (
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// extractFromRAR adds every wanted file of a RAR archive to m
func extractFromRAR(path string, extensions []string, m *memFS) error {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open rar: %w", err)
	}
	defer r.Close()

	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read rar entry: %w", err)
		}
		if header.IsDir {
			continue
		}
		if err := addEntry(m, header.Name, r, extensions); err != nil {
			return err
		}
	}
	return nil
}
