package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/user-none/slidefx/api"
	"github.com/user-none/slidefx/bundle"
	"github.com/user-none/slidefx/config"
	"github.com/user-none/slidefx/logging"
)

// Project is a loaded slideshow. It implements api.Sequence, and
// api.AssetResolver when its images live in a bundle.
type Project struct {
	path   string
	title  string
	aspect float64
	clips  []api.StaticClip
	assets fs.FS
	file   File
}

// Load reads, sanitizes and validates the project at path. Relative image
// paths resolve against the project's directory, or inside the assets bundle
// when one is named.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Project, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", path, err)
	}

	if problems := ValidateFile(&f); len(problems) > 0 {
		return nil, &ValidationError{Path: path, Problems: problems}
	}
	SanitizeClips(&f)

	aspect := api.DefaultAspectRatio
	if f.AspectRatio != "" {
		aspect, _ = api.ParseAspectRatio(f.AspectRatio)
	}

	p := &Project{path: path, title: f.Title, aspect: aspect, file: f}
	dir := filepath.Dir(path)
	if f.Assets != "" {
		assetsPath := f.Assets
		if !filepath.IsAbs(assetsPath) {
			assetsPath = filepath.Join(dir, assetsPath)
		}
		fsys, err := bundle.Open(assetsPath, bundle.ImageExtensions)
		if err != nil {
			return nil, fmt.Errorf("failed to open project assets: %w", err)
		}
		p.assets = fsys
	}

	for _, c := range f.Clips {
		src := c.Image
		if p.assets == nil && !filepath.IsAbs(src) {
			src = filepath.Join(dir, filepath.FromSlash(src))
		}
		p.clips = append(p.clips, api.StaticClip{
			Source:     src,
			DurationMs: c.DurationMs,
			Transition: c.Transition,
			Overlap:    *c.Overlap,
		})
	}

	logging.Logger().Info("project loaded", "path", path, "clips", len(p.clips), "aspect", aspect)
	return p, nil
}

// Options configure a project built from a bundle of images.
type Options struct {
	DurationMs  int64
	Transition  string
	Overlap     float64
	AspectRatio float64
}

// FromBundle builds a project from every image in a directory or archive,
// ordered by path.
func FromBundle(path string, opts Options) (*Project, error) {
	fsys, err := bundle.Open(path, bundle.ImageExtensions)
	if err != nil {
		return nil, err
	}
	names, err := bundle.List(fsys, bundle.ImageExtensions)
	if err != nil {
		if errors.Is(err, bundle.ErrNoFiles) {
			return nil, &ValidationError{Path: path, Problems: []string{"no images found"}}
		}
		return nil, err
	}

	overlap := opts.Overlap
	f := File{
		Version: 1,
		Title:   filepath.Base(path),
		Defaults: ClipDefaults{
			DurationMs: opts.DurationMs,
			Transition: opts.Transition,
			Overlap:    &overlap,
		},
	}
	for _, name := range names {
		f.Clips = append(f.Clips, ClipEntry{Image: name})
	}
	SanitizeClips(&f)

	aspect := opts.AspectRatio
	if aspect <= 0 {
		aspect = api.DefaultAspectRatio
	}
	p := &Project{path: path, title: f.Title, aspect: aspect, assets: fsys, file: f}
	for _, c := range f.Clips {
		p.clips = append(p.clips, api.StaticClip{
			Source:     c.Image,
			DurationMs: c.DurationMs,
			Transition: c.Transition,
			Overlap:    *c.Overlap,
		})
	}
	return p, nil
}

// Save writes the project file to path atomically.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return config.AtomicWriteFile(path, data)
}

// Clips implements api.Sequence.
func (p *Project) Clips() []api.Clip {
	out := make([]api.Clip, len(p.clips))
	for i, c := range p.clips {
		out[i] = c
	}
	return out
}

// TargetAspectRatio implements api.Sequence.
func (p *Project) TargetAspectRatio() float64 { return p.aspect }

// AssetFS implements api.AssetResolver. It is nil for projects whose images
// are plain files.
func (p *Project) AssetFS() fs.FS { return p.assets }

// Title implements api.Titled.
func (p *Project) Title() string {
	if p.title != "" {
		return p.title
	}
	return filepath.Base(p.path)
}

// Path returns where the project was loaded from.
func (p *Project) Path() string { return p.path }

// File returns the sanitized project file.
func (p *Project) File() File { return p.file }
