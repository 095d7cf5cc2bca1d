// Command diskarc exercises the archive bridge against synthetic
// in-memory volumes: cataloging, bulk add from a host directory,
// extraction, and cross-volume transfer. Disk-image files are only
// inspected at the wrapper level; no sector decoding happens here.
package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/retroarc/diskarc"
	"github.com/retroarc/diskarc/imgfile"
	"github.com/retroarc/diskarc/internal/memfs"
)

type config struct {
	Mode          string `yaml:"mode"`
	Image         string `yaml:"image"`
	AddDir        string `yaml:"add_dir"`
	OutDir        string `yaml:"out_dir"`
	ToFormat      string `yaml:"to_format"`
	StoragePrefix string `yaml:"storage_prefix"`
	StripPaths    bool   `yaml:"strip_paths"`
	Recurse       bool   `yaml:"recurse"`
	EOL           string `yaml:"eol"`
	Overwrite     bool   `yaml:"overwrite"`
	Verbose       bool   `yaml:"verbose"`
}

func parseFlags() (config, error) {
	cfg := config{
		Mode:    "list",
		EOL:     "off",
		Recurse: true,
	}

	configPath := pflag.String("config", "", "yaml config file with flag defaults")
	pflag.StringVar(&cfg.Mode, "mode", cfg.Mode, "list | add | extract | transfer | sniff")
	pflag.StringVar(&cfg.Image, "image", cfg.Image, "disk image file (sniff mode)")
	pflag.StringVar(&cfg.AddDir, "add-dir", cfg.AddDir, "host directory to add files from")
	pflag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "output directory for extraction")
	pflag.StringVar(&cfg.ToFormat, "to-format", "dos", "transfer target format: prodos | dos | pascal | hfs")
	pflag.StringVar(&cfg.StoragePrefix, "prefix", cfg.StoragePrefix, "storage path prefix for added files")
	pflag.BoolVar(&cfg.StripPaths, "strip-paths", cfg.StripPaths, "store added files by base name only")
	pflag.BoolVar(&cfg.Recurse, "recurse", cfg.Recurse, "descend into subdirectories when adding")
	pflag.StringVar(&cfg.EOL, "eol", cfg.EOL, "text conversion: off | on | auto | type")
	pflag.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "overwrite colliding names instead of failing")
	pflag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "debug logging")
	pflag.Parse()

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		fileCfg := cfg
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		// Explicit flags win over file values.
		saved := cfg
		cfg = fileCfg
		pflag.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "mode":
				cfg.Mode = saved.Mode
			case "image":
				cfg.Image = saved.Image
			case "add-dir":
				cfg.AddDir = saved.AddDir
			case "out":
				cfg.OutDir = saved.OutDir
			case "to-format":
				cfg.ToFormat = saved.ToFormat
			case "prefix":
				cfg.StoragePrefix = saved.StoragePrefix
			case "strip-paths":
				cfg.StripPaths = saved.StripPaths
			case "recurse":
				cfg.Recurse = saved.Recurse
			case "eol":
				cfg.EOL = saved.EOL
			case "overwrite":
				cfg.Overwrite = saved.Overwrite
			case "verbose":
				cfg.Verbose = saved.Verbose
			}
		})
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}
	logger := newLogger(cfg.Verbose)

	switch cfg.Mode {
	case "list":
		err = runList(logger)
	case "add":
		err = runAdd(cfg, logger)
	case "extract":
		err = runExtract(cfg, logger)
	case "transfer":
		err = runTransfer(cfg, logger)
	case "sniff":
		err = runSniff(cfg)
	default:
		err = fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// demoVolume builds the synthetic ProDOS volume the tool operates on: a
// few files, a directory tree, a forked file, and a nested DOS
// sub-volume.
func demoVolume() *memfs.FS {
	dos := memfs.New(diskarc.FormatDOS33, "254")
	dos.MustAddFile("HELLO", diskarc.FileTypeBAS, 0x0801, []byte{0x01, 0x08}, nil)
	dos.MustAddFile("NOTES", diskarc.FileTypeTXT, 0, []byte("LINE ONE\rLINE TWO\r"), nil)

	fs := memfs.New(diskarc.FormatProDOS, "DEMO",
		memfs.WithVolumeDir(),
		memfs.WithSubVolume(dos),
	)
	fs.MustAddFile("README.TXT", diskarc.FileTypeTXT, 0, []byte("generic archive bridge demo\r"), nil)
	fs.MustAddDir("SRC")
	fs.MustAddFile("SRC:MAIN.S", diskarc.FileTypeSRC, 0, []byte("* main entry\r"), nil)
	fs.MustAddDir("EMPTY")
	fs.MustAddFile("ICON", diskarc.FileTypeBIN, 0x2000, []byte{0xAA, 0x55}, []byte{0x00, 0x01})
	return fs
}

func runList(logger *slog.Logger) error {
	arc, err := diskarc.New(demoVolume(), diskarc.WithLogger(logger))
	if err != nil {
		return err
	}
	printCatalog(arc)
	return nil
}

func printCatalog(arc *diskarc.Archive) {
	fmt.Printf("volume %s (%s), %d entries\n",
		arc.VolumeName(), arc.Format(), arc.Entries().Len())
	arc.Entries().Ascend(func(e *diskarc.Entry) bool {
		data, rsrc := "-", "-"
		if e.HasDataFork() {
			data = fmt.Sprintf("%d", e.DataLen)
		}
		if e.HasRsrcFork() {
			rsrc = fmt.Sprintf("%d", e.RsrcLen)
		}
		fmt.Printf("  %-30s %-8s $%02X data=%-8s rsrc=%s\n",
			e.DisplayName(), e.FormatName, e.FileType, data, rsrc)
		return true
	})
}

// overwriteAll resolves every collision the same way without prompting.
type overwriteAll struct {
	overwrite bool
}

func (o overwriteAll) ResolveConflict(diskarc.ExistingSummary, *diskarc.FileDetails) diskarc.Resolution {
	action := diskarc.OverwriteSkip
	if o.overwrite {
		action = diskarc.OverwriteYes
	}
	return diskarc.Resolution{Action: action, ApplyToRemaining: true}
}

func runAdd(cfg config, logger *slog.Logger) error {
	if cfg.AddDir == "" {
		return errors.New("add mode needs --add-dir")
	}

	candidates, err := diskarc.ScanDir(cfg.AddDir, diskarc.ScanOptions{
		StoragePrefix:     cfg.StoragePrefix,
		StripPaths:        cfg.StripPaths,
		IncludeSubfolders: cfg.Recurse,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	logger.Info("scanned host directory", "dir", cfg.AddDir, "candidates", len(candidates))

	arc, err := diskarc.New(demoVolume(), diskarc.WithLogger(logger))
	if err != nil {
		return err
	}

	added, err := arc.AddFiles(candidates, overwriteAll{overwrite: cfg.Overwrite}, parseEOLPolicy(cfg.EOL), nil)
	if err != nil {
		return err
	}
	logger.Info("add complete", "added", added)
	printCatalog(arc)
	return nil
}

func parseEOLPolicy(s string) diskarc.EOLPolicy {
	switch strings.ToLower(s) {
	case "on":
		return diskarc.EOLPolicyOn
	case "auto":
		return diskarc.EOLPolicyAuto
	case "type":
		return diskarc.EOLPolicyByType
	default:
		return diskarc.EOLPolicyOff
	}
}

func parseEOLMode(s string) diskarc.EOLMode {
	switch strings.ToLower(s) {
	case "on", "type":
		return diskarc.EOLOn
	case "auto":
		return diskarc.EOLAuto
	default:
		return diskarc.EOLOff
	}
}

func runExtract(cfg config, logger *slog.Logger) error {
	if cfg.OutDir == "" {
		return errors.New("extract mode needs --out")
	}

	arc, err := diskarc.New(demoVolume(), diskarc.WithLogger(logger))
	if err != nil {
		return err
	}

	mode := parseEOLMode(cfg.EOL)
	var extracted int
	var walkErr error
	arc.Entries().Ascend(func(e *diskarc.Entry) bool {
		if e.Kind == diskarc.RecordDirectory || e.Kind == diskarc.RecordVolumeDir {
			return true
		}
		if walkErr = extractEntry(arc, e, cfg.OutDir, mode); walkErr != nil {
			return false
		}
		extracted++
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	logger.Info("extraction complete", "files", extracted, "out", cfg.OutDir)
	return nil
}

func extractEntry(arc *diskarc.Archive, e *diskarc.Entry, outDir string, mode diskarc.EOLMode) error {
	hostPath := filepath.Join(outDir, hostName(e))
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return err
	}

	if e.HasDataFork() {
		if err := extractForkToFile(e, diskarc.DataFork, hostPath, mode); err != nil {
			return err
		}
	}
	if e.HasRsrcFork() {
		if err := extractForkToFile(e, diskarc.RsrcFork, hostPath+".rsrc", diskarc.EOLOff); err != nil {
			return err
		}
	}
	return nil
}

func extractForkToFile(e *diskarc.Entry, fork diskarc.Fork, path string, mode diskarc.EOLMode) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	highASCII := e.SourceFormat.UsesDOSStructure()
	if err := diskarc.ExtractForkTo(e, fork, f, mode, highASCII, nil); err != nil {
		return fmt.Errorf("extract %q: %w", e.DisplayName(), err)
	}
	return f.Close()
}

// hostName maps an entry's display path to a relative host path.
func hostName(e *diskarc.Entry) string {
	parts := strings.Split(e.DisplayName(), ":")
	for i, p := range parts {
		parts[i] = strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == 0 {
				return '_'
			}
			return r
		}, p)
	}
	return filepath.Join(parts...)
}

func runTransfer(cfg config, logger *slog.Logger) error {
	src, err := diskarc.New(demoVolume(), diskarc.WithLogger(logger))
	if err != nil {
		return err
	}

	var target *memfs.FS
	switch strings.ToLower(cfg.ToFormat) {
	case "prodos":
		target = memfs.New(diskarc.FormatProDOS, "TARGET")
	case "pascal":
		target = memfs.New(diskarc.FormatPascal, "TARGET")
	case "hfs":
		target = memfs.New(diskarc.FormatHFS, "Target")
	case "dos":
		target = memfs.New(diskarc.FormatDOS33, "254")
	default:
		return fmt.Errorf("unknown target format %q", cfg.ToFormat)
	}

	dst, err := diskarc.New(target, diskarc.WithLogger(logger))
	if err != nil {
		return err
	}

	err = diskarc.TransferSelection(src.Entries(), dst, diskarc.TransferOptions{
		PreserveEmptyFolders: true,
		Logger:               logger,
	})
	if err != nil {
		return err
	}

	logger.Info("transfer complete", "entries", dst.Entries().Len())
	printCatalog(dst)
	return nil
}

func runSniff(cfg config) error {
	if cfg.Image == "" {
		return errors.New("sniff mode needs --image")
	}
	img, err := imgfile.Load(cfg.Image)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes, gzip wrapper: %v\n", cfg.Image, len(img.Data), img.Compressed)
	return nil
}
