// Package bundle opens a tree of effect sources or image assets from a
// directory or an archive (ZIP, 7z, gzip, tar.gz, RAR) as an fs.FS.
package bundle

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Magic bytes for format detection
var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06} // empty zip
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21} // "Rar!"
)

// Size limits for extracted content
const (
	maxEntrySize  = 64 * 1024 * 1024
	maxBundleSize = 256 * 1024 * 1024
)

// EffectExtensions selects the files an effect bundle is made of.
var EffectExtensions = []string{".kage", ".yaml", ".yml"}

// ImageExtensions selects the files an image bundle is made of.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

// ErrNoFiles is returned when an archive holds no file with a wanted extension
var ErrNoFiles = errors.New("no matching files found in archive")

// ErrUnsupportedFormat is returned for unrecognized file formats
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when extracted content exceeds size limit
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// formatType represents the detected file format
type formatType int

const (
	formatUnknown formatType = iota
	formatDir
	formatZIP
	format7z
	formatGzip
	formatRAR
)

// Open returns the files under path. A directory is served live from disk.
// An archive is detected by magic bytes (falling back to the extension) and
// every regular file whose name ends in one of extensions is extracted into
// memory, keeping its relative path. A nil extensions list keeps every file.
func Open(path string, extensions []string) (fs.FS, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	if info.IsDir() {
		return os.DirFS(path), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	// Read header for magic byte detection
	header := make([]byte, 16)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	header = header[:n]

	m := newMemFS()
	switch detectFormat(header, path) {
	case formatZIP:
		err = extractFromZIP(path, extensions, m)
	case format7z:
		err = extractFrom7z(path, extensions, m)
	case formatGzip:
		err = extractFromGzip(path, extensions, m)
	case formatRAR:
		err = extractFromRAR(path, extensions, m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}
	if m.Len() == 0 {
		return nil, ErrNoFiles
	}
	return m, nil
}

// FindRoot returns the directory of fsys that holds marker: fsys itself, or
// the single top-level directory archives are commonly packed with.
func FindRoot(fsys fs.FS, marker string) (fs.FS, error) {
	if _, err := fs.Stat(fsys, marker); err == nil {
		return fsys, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 1 {
		if _, err := fs.Stat(fsys, path.Join(dirs[0], marker)); err == nil {
			return fs.Sub(fsys, dirs[0])
		}
	}
	return nil, fmt.Errorf("%s not found in bundle: %w", marker, fs.ErrNotExist)
}

// detectFormat determines the file format based on magic bytes and extension.
func detectFormat(header []byte, path string) formatType {
	ext := strings.ToLower(filepath.Ext(path))

	// Check magic bytes first (more reliable)
	if len(header) >= 4 {
		if bytes.HasPrefix(header, magicZIP) || bytes.HasPrefix(header, magicZIPEnd) {
			return formatZIP
		}
		if bytes.HasPrefix(header, magicRAR) {
			return formatRAR
		}
	}
	if len(header) >= 6 && bytes.HasPrefix(header, magic7z) {
		return format7z
	}
	if len(header) >= 2 && bytes.HasPrefix(header, magicGzip) {
		return formatGzip
	}

	// Fall back to extension for archive formats
	switch ext {
	case ".zip":
		return formatZIP
	case ".7z":
		return format7z
	case ".gz", ".tgz":
		return formatGzip
	case ".rar":
		return formatRAR
	}

	return formatUnknown
}

// isWanted checks if a filename has one of the given extensions (case-insensitive)
func isWanted(name string, extensions []string) bool {
	if extensions == nil {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// entryPath normalizes an archive entry name to an fs.FS path. Names that
// escape the archive root are rejected.
func entryPath(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

// limitedRead reads from r up to maxEntrySize bytes, returning an error if exceeded
func limitedRead(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, maxEntrySize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// addEntry reads one archive entry into m when it is wanted.
func addEntry(m *memFS, name string, r io.Reader, extensions []string) error {
	p, ok := entryPath(name)
	if !ok || !isWanted(p, extensions) {
		return nil
	}
	data, err := limitedRead(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if m.Size()+int64(len(data)) > maxBundleSize {
		return ErrFileTooLarge
	}
	m.Add(p, data)
	return nil
}

// List returns every regular file in fsys with one of extensions, in lexical
// path order. A nil extensions list keeps every file.
func List(fsys fs.FS, extensions []string) ([]string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && isWanted(name, extensions) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoFiles
	}
	return names, nil
}
