// daetool is a CLI utility for importing COLLADA documents into normalized,
// triangulated mesh primitives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/daeprim/internal/assets"
	"github.com/Faultbox/daeprim/internal/config"
	"github.com/Faultbox/daeprim/internal/logger"
	"github.com/Faultbox/daeprim/pkg/collada"
	"github.com/Faultbox/daeprim/pkg/export"
	"github.com/Faultbox/daeprim/pkg/prim"
	"github.com/Faultbox/daeprim/pkg/texture"
)

func main() {
	flag.Usage = printUsage
	config.ParseFlags()

	args := config.Args()
	if len(args) < 1 {
		printUsage()
		exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}

	if err := logger.InitWithOptions(logger.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.LoggerFile(),
		Console: os.Stderr,
	}); err != nil {
		fatalf("%v", err)
	}
	defer logger.Sync()

	decoder, err := collada.NewDecoder(cfg.DecoderOptions())
	if err != nil {
		fatalf("%v", err)
	}
	app := &app{
		cfg:     cfg,
		decoder: decoder,
		loader:  prim.NewLoader(prim.WithDecoder(decoder), prim.WithLogger(logger.Named("import"))),
	}

	command := args[0]
	args = args[1:]

	switch command {
	case "info":
		app.cmdInfo(args)
	case "list", "ls":
		app.cmdList(args)
	case "materials", "mat":
		app.cmdMaterials(args)
	case "textures", "tex":
		app.cmdTextures(args)
	case "export", "x":
		app.cmdExport(args)
	case "batch":
		app.cmdBatch(args)
	case "watch":
		app.cmdWatch(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		exit(1)
	}
}

func printUsage() {
	fmt.Println(`daetool - COLLADA mesh import utility

Usage:
  daetool [flags] <command> [options]

Commands:
  info <file.dae>                 Show asset metadata and library counts
  list <file.dae>                 List primitives with bounds and faces
  materials <file.dae>            Show resolved materials
  textures <file.dae>             Probe texture files referenced by materials
  export <file.dae> [output]      Write glTF, GLB or YAML
  batch <dir|glob>                Import many documents concurrently
  watch <dir>                     Re-import documents as they change

Flags:
  -config <file>    Config file (.yaml or .toml)
  -debug            Enable debug logging
  -workers <n>      Concurrent imports for batch and watch
  -format <fmt>     Export format: gltf, glb or yaml
  -out <dir>        Export output directory

Examples:
  daetool info chair.dae
  daetool -format gltf export chair.dae
  daetool export chair.dae chair.yaml
  daetool -workers 8 batch "models/*.dae"
  daetool watch ./models`)
}

type app struct {
	cfg     *config.Config
	decoder *collada.Decoder
	loader  *prim.Loader
}

func (a *app) cmdInfo(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool info <file.dae>")
		exit(1)
	}

	doc, err := a.decoder.DecodeFile(args[0])
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("Document:  %s\n", args[0])
	fmt.Printf("Version:   %s\n", orDash(doc.Version))
	fmt.Printf("Tool:      %s\n", orDash(doc.Asset.AuthoringTool))
	fmt.Printf("Up axis:   %s\n", doc.Asset.UpAxis)
	fmt.Printf("Unit:      %s (%g m)\n", orDash(doc.Asset.UnitName), doc.Asset.Meter)
	fmt.Println()
	fmt.Println("Libraries:")
	fmt.Printf("  %-14s %d\n", "images", len(doc.Images))
	fmt.Printf("  %-14s %d\n", "materials", len(doc.Materials))
	fmt.Printf("  %-14s %d\n", "effects", len(doc.Effects))
	fmt.Printf("  %-14s %d\n", "visual scenes", len(doc.VisualScenes))
	fmt.Printf("  %-14s %d\n", "geometries", len(doc.Geometries))
	fmt.Printf("  %-14s %d\n", "nodes", doc.NodeCount())
	fmt.Printf("  %-14s %d\n", "polygon lists", doc.PolygonListCount())

	if len(doc.VisualScenes) > 1 {
		fmt.Fprintf(os.Stderr, "\n(only the first of %d visual scenes is imported)\n", len(doc.VisualScenes))
	}
}

func (a *app) cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Show per-face materials")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool list [-v] <file.dae>")
		exit(1)
	}

	prims := a.load(fs.Arg(0))
	for _, p := range prims {
		fmt.Printf("%s", p.ID)
		if p.Name != "" && p.Name != p.ID {
			fmt.Printf(" (%s)", p.Name)
		}
		fmt.Println()
		fmt.Printf("  positions: %d  faces: %d  triangles: %d\n", len(p.Positions), len(p.Faces), p.TriangleCount())
		fmt.Printf("  bounds:    %s .. %s\n", vec(p.BoundMin.Array()), vec(p.BoundMax.Array()))
		fmt.Printf("  scale:     %s\n", vec(p.Scale.Array()))
		fmt.Printf("  position:  %s\n", vec(p.Position.Array()))

		if *verbose {
			for i, f := range p.Faces {
				status := "unresolved"
				if f.Material != nil {
					status = "ok"
				}
				fmt.Printf("  face %d: %-24s %4d triangles  [%s]\n", i, f.MaterialID, f.TriangleCount(), status)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d primitives)\n", len(prims))
}

func (a *app) cmdMaterials(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool materials <file.dae>")
		exit(1)
	}

	doc, err := a.decoder.DecodeFile(args[0])
	if err != nil {
		fatalf("%v", err)
	}

	materials := prim.ResolveMaterials(doc)
	sort.Slice(materials, func(i, j int) bool {
		return materials[i].ID < materials[j].ID
	})

	for _, m := range materials {
		switch file, ok := m.TextureFile(); {
		case ok:
			fmt.Printf("%-28s texture %s\n", m.ID, file)
		case m.Texture != "":
			fmt.Printf("%-28s texture %s (unresolved)\n", m.ID, m.Texture)
		default:
			c := m.DiffuseColor
			fmt.Printf("%-28s color   %.3g %.3g %.3g %.3g\n", m.ID, c[0], c[1], c[2], c[3])
		}
	}

	if dropped := len(doc.Materials) - len(materials); dropped > 0 {
		fmt.Fprintf(os.Stderr, "\n(%d materials without a usable phong or lambert effect)\n", dropped)
	}
}

func (a *app) cmdTextures(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool textures <file.dae>")
		exit(1)
	}

	doc, err := a.decoder.DecodeFile(args[0])
	if err != nil {
		fatalf("%v", err)
	}

	seen := make(map[string]bool)
	missing := 0
	for _, m := range prim.ResolveMaterials(doc) {
		file, ok := m.TextureFile()
		if !ok || seen[file] {
			continue
		}
		seen[file] = true

		path := texture.Resolve(args[0], file)
		info, err := texture.Probe(path)
		if err != nil {
			fmt.Printf("%-40s error: %v\n", file, err)
			missing++
			continue
		}
		fmt.Printf("%-40s %-5s %dx%d\n", file, info.Format, info.Width, info.Height)
	}

	fmt.Fprintf(os.Stderr, "\n(%d textures, %d unreadable)\n", len(seen), missing)
}

func (a *app) cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool export <file.dae> [output]")
		exit(1)
	}

	input := fs.Arg(0)
	output := ""
	if fs.NArg() > 1 {
		output = fs.Arg(1)
	}

	prims := a.load(input)
	if len(prims) == 0 {
		fatalf("no primitives imported from %s", input)
	}

	path, err := a.export(input, output, prims)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Exported: %s (%d primitives)\n", path, len(prims))
}

// export writes prims for input. An empty output derives the name from the
// input and the configured format.
func (a *app) export(input, output string, prims []*prim.Primitive) (string, error) {
	format := a.cfg.Export.Format
	if output != "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".gltf":
			format = config.FormatGLTF
		case ".glb":
			format = config.FormatGLB
		case ".yaml", ".yml":
			format = config.FormatYAML
		}
	} else {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		dir := a.cfg.Export.OutputDir
		if dir == "" {
			dir = filepath.Dir(input)
		}
		output = filepath.Join(dir, base+"."+format)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	if format != config.FormatYAML {
		return output, export.WriteGLTF(output, prims)
	}

	f, err := os.Create(output)
	if err != nil {
		return "", err
	}
	if err := export.YAML(f, prims); err != nil {
		f.Close()
		return "", err
	}
	return output, f.Close()
}

func (a *app) cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	doExport := fs.Bool("export", false, "Export every imported document")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool batch [-export] <dir|glob>")
		exit(1)
	}

	paths, err := documents(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "No documents found")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager := assets.NewManager(a.loader, a.cfg.Batch.Workers, logger.Named("batch"))
	start := time.Now()
	results, err := manager.LoadAll(ctx, paths)
	if err != nil {
		fatalf("%v", err)
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("FAIL  %s: %s\n", r.Path, describe(r.Err))
		case len(r.Primitives) == 0:
			failed++
			fmt.Printf("EMPTY %s\n", r.Path)
		default:
			fmt.Printf("OK    %s (%d primitives)\n", r.Path, len(r.Primitives))
			if *doExport {
				if out, err := a.export(r.Path, "", r.Primitives); err != nil {
					fmt.Fprintf(os.Stderr, "Error exporting %s: %v\n", r.Path, err)
				} else {
					logger.Debug("exported", zap.String("path", out))
				}
			}
		}
	}

	fmt.Fprintf(os.Stderr, "\n(%d documents, %d failed, %s)\n", len(results), failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		exit(1)
	}
}

func (a *app) cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	doExport := fs.Bool("export", false, "Export documents after each import")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daetool watch [-export] <dir>")
		exit(1)
	}
	dir := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager := assets.NewManager(a.loader, a.cfg.Batch.Workers, logger.Named("watch"))
	debounce := time.Duration(a.cfg.Watch.Debounce)

	err := manager.Watch(ctx, dir, debounce, func(path string, prims []*prim.Primitive, err error) {
		if err != nil {
			fmt.Printf("FAIL  %s: %s\n", path, describe(err))
			return
		}
		fmt.Printf("OK    %s (%d primitives)\n", path, len(prims))
		if *doExport && len(prims) > 0 {
			if _, err := a.export(path, "", prims); err != nil {
				fmt.Fprintf(os.Stderr, "Error exporting %s: %v\n", path, err)
			}
		}
	})
	if err != nil {
		fatalf("%v", err)
	}
}

// load imports one document, exiting on unsupported input.
func (a *app) load(path string) []*prim.Primitive {
	prims, err := a.loader.LoadFile(path)
	if err != nil {
		fatalf("%s", describe(err))
	}
	return prims
}

// documents expands a directory or glob pattern into .dae paths.
func documents(arg string) ([]string, error) {
	var paths []string
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && assets.IsDocument(path) {
				paths = append(paths, path)
			}
			return nil
		})
		return paths, err
	}

	matches, err := filepath.Glob(arg)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if assets.IsDocument(m) {
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// describe formats an import error for the terminal.
func describe(err error) string {
	if errors.Is(err, prim.ErrUnsupportedFormat) {
		return err.Error() + " (re-export triangulated)"
	}
	return err.Error()
}

func vec(v [3]float32) string {
	return fmt.Sprintf("(%.4g, %.4g, %.4g)", v[0], v[1], v[2])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	exit(1)
}

var osExit = os.Exit

// exit flushes buffered log entries, which deferred calls would miss, and
// terminates with code.
func exit(code int) {
	logger.Sync()
	osExit(code)
}
