// Command slidefx previews a slideshow project with shader transitions, or
// exports it as a numbered PNG sequence.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/user-none/slidefx/api"
	"github.com/user-none/slidefx/bundle"
	"github.com/user-none/slidefx/config"
	"github.com/user-none/slidefx/effects"
	"github.com/user-none/slidefx/gpuloop"
	"github.com/user-none/slidefx/logging"
	"github.com/user-none/slidefx/player"
	"github.com/user-none/slidefx/preprocess"
	"github.com/user-none/slidefx/project"
	"github.com/user-none/slidefx/session"
)

const version = "v0.1.0"

type options struct {
	configPath    string
	export        bool
	outDir        string
	fps           int
	tier          string
	effectsDir    string
	effectsBundle string
	defaultEffect string
	durationMs    int64
	overlap       float64
	transition    string
	aspect        string
	loop          bool
	folder        bool
	info          bool
	listEffects   bool
	showVersion   bool
	input         string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	flags := flag.NewFlagSet("slidefx", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $"+config.EnvConfig+" or the data directory)")
	flags.BoolVar(&opts.export, "export", false, "Export a PNG sequence instead of opening a preview")
	flags.StringVar(&opts.outDir, "out", "", "Export directory (default: timestamped directory under the data directory)")
	flags.IntVar(&opts.fps, "fps", 0, "Export frame rate (default: config)")
	flags.StringVar(&opts.tier, "tier", "", "Texture tier: preview, standard, export (default: config)")
	flags.StringVar(&opts.effectsDir, "effects", "", "Directory of extra effects with a manifest.yaml")
	flags.StringVar(&opts.effectsBundle, "effects-bundle", "", "Archive of extra effects")
	flags.StringVar(&opts.defaultEffect, "default-effect", "", "Effect used when a clip's effect is missing")
	flags.Int64Var(&opts.durationMs, "duration", project.DefaultDurationMs, "Image duration in ms for image folders and archives")
	flags.Float64Var(&opts.overlap, "overlap", project.DefaultOverlap, "Transition overlap for image folders and archives")
	flags.StringVar(&opts.transition, "transition", "", "Transition for image folders and archives (default: the default effect)")
	flags.StringVar(&opts.aspect, "aspect", "16:9", "Aspect ratio for image folders and archives")
	flags.BoolVar(&opts.loop, "loop", false, "Loop the preview")
	flags.BoolVar(&opts.folder, "folder", false, "Without an input, choose an image folder instead of a project")
	flags.BoolVar(&opts.info, "info", false, "Show the info panel on start")
	flags.BoolVar(&opts.listEffects, "list-effects", false, "List the effect catalog and exit")
	flags.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: slidefx [flags] [project.yaml | image folder | archive]\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 1 {
		return nil, fmt.Errorf("expected one project, got %d arguments", flags.NArg())
	}
	opts.input = flags.Arg(0)
	if opts.tier != "" {
		if _, err := preprocess.ParseTier(opts.tier); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, player.ErrCanceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "slidefx: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("slidefx %s\n", version)
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)
	setupLogging(cfg.LogLevel)

	store := newStore(cfg)
	if opts.listEffects {
		return printEffects(os.Stdout, store)
	}

	input := opts.input
	if input == "" {
		input, err = chooseInput(opts.folder)
		if err != nil {
			return err
		}
	}
	if opts.transition == "" {
		opts.transition = cfg.DefaultEffect
	}
	seq, title, err := openSequence(input, opts)
	if err != nil {
		return err
	}

	sess, err := session.New(cfg, seq, store, session.WithProgress(func(p session.Progress) {
		logging.Logger().Debug("asset prepared", "done", p.Done, "total", p.Total, "source", p.Source, "normalized", p.Normalized)
	}))
	if err != nil {
		return err
	}
	defer sess.Close()

	q := gpuloop.NewQueue()
	if opts.export {
		res, err := player.RunExport(sess, q, player.ExportOptions{
			Dir:   opts.outDir,
			FPS:   cfg.FPS,
			Title: title,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d frames to %s in %s\n", res.Frames, res.Dir, res.Elapsed.Round(time.Millisecond))
		return nil
	}

	return player.RunPreview(sess, q, player.PreviewOptions{
		Title:    title,
		Width:    cfg.Window.Width,
		Height:   cfg.Window.Height,
		Loop:     opts.loop,
		ShowInfo: opts.info,
	})
}

// chooseInput asks for a project or archive, or for an image folder.
func chooseInput(folder bool) (string, error) {
	if folder {
		return player.ChooseDirectory()
	}
	return player.ChooseProject()
}

// loadConfig reads the config file, creating a default one when missing,
// then applies environment overrides and corrects invalid values.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return nil, err
		}
	}
	if err := config.CreateConfigIfMissing(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create config: %v\n", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	for _, problem := range config.ValidateConfig(cfg) {
		fmt.Fprintf(os.Stderr, "Warning: config %s\n", problem)
	}
	return config.CorrectConfig(cfg), nil
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.fps > 0 {
		cfg.FPS = opts.fps
	}
	if opts.tier != "" {
		cfg.TextureTier = opts.tier
	}
	if opts.effectsDir != "" {
		cfg.EffectsDir = opts.effectsDir
	}
	if opts.effectsBundle != "" {
		cfg.EffectsBundle = opts.effectsBundle
	}
	if opts.defaultEffect != "" {
		cfg.DefaultEffect = opts.defaultEffect
	}
}

func setupLogging(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(level),
	}))
	logging.SetLogger(logger)
}

// newStore builds the effect catalog: the built-ins, then the user effects
// directory, then the configured directory and bundle.
func newStore(cfg *config.Config) *effects.Store {
	storeOpts := []effects.StoreOption{effects.WithDefaultID(cfg.DefaultEffect)}

	if dir, err := config.GetEffectsDir(); err == nil {
		if _, err := os.Stat(filepath.Join(dir, effects.ManifestFile)); err == nil {
			storeOpts = append(storeOpts, effects.WithRoot(dir, os.DirFS(dir)))
		}
	}
	if cfg.EffectsDir != "" {
		storeOpts = append(storeOpts, effects.WithRoot(cfg.EffectsDir, os.DirFS(cfg.EffectsDir)))
	}
	if cfg.EffectsBundle != "" {
		root, err := openEffectsBundle(cfg.EffectsBundle)
		if err != nil {
			logging.Logger().Warn("effects bundle skipped", "path", cfg.EffectsBundle, "error", err)
		} else {
			storeOpts = append(storeOpts, effects.WithRoot(cfg.EffectsBundle, root))
		}
	}
	return effects.NewStore(storeOpts...)
}

func openEffectsBundle(path string) (fs.FS, error) {
	b, err := bundle.Open(path, bundle.EffectExtensions)
	if err != nil {
		return nil, err
	}
	return bundle.FindRoot(b, effects.ManifestFile)
}

// printEffects lists the catalog by category, then any rejected sources.
func printEffects(w io.Writer, store *effects.Store) error {
	def, err := store.Default()
	if err != nil {
		return err
	}
	for _, c := range effects.Categories {
		list := store.ByCategory(c)
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", c)
		for _, d := range list {
			mark := ""
			if d.ID == def.ID {
				mark = " (default)"
			}
			fmt.Fprintf(w, "  %-20s %s%s\n", d.ID, d.Name, mark)
		}
	}
	for _, err := range store.Rejected() {
		fmt.Fprintf(w, "skipped: %v\n", err)
	}
	return nil
}

// openSequence loads a project file, or builds a sequence from every image
// in a folder or archive.
func openSequence(path string, opts *options) (api.Sequence, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		p, err := project.Load(path)
		if err != nil {
			return nil, "", err
		}
		return p, p.Title(), nil
	}

	aspect, err := api.ParseAspectRatio(opts.aspect)
	if err != nil {
		return nil, "", err
	}
	p, err := project.FromBundle(path, project.Options{
		DurationMs:  opts.durationMs,
		Transition:  opts.transition,
		Overlap:     opts.overlap,
		AspectRatio: aspect,
	})
	if err != nil {
		return nil, "", err
	}
	return p, p.Title(), nil
}
