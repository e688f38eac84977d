package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/config"
	"github.com/Ayoubbar/geomapscore/internal/legend"
)

// Command names a subcommand.
type Command string

const (
	CommandScore   Command = "score"
	CommandProbe   Command = "probe"
	CommandServe   Command = "serve"
	CommandVersion Command = "version"
)

// ErrHelp is returned when usage was requested and printed.
var ErrHelp = flag.ErrHelp

// Config holds the parsed CLI arguments. Only the section matching
// Command is populated.
type Config struct {
	Command   Command
	LogLevel  string
	LogPretty bool

	Score ScoreConfig
	Probe ProbeConfig
	Serve config.Config
}

// ScoreConfig drives one file-based scoring run.
type ScoreConfig struct {
	LegendPath    string
	MapPath       string
	OutPath       string
	HeatPath      string
	CSVPath       string
	FlatPath      string
	Calibration   legend.Calibration
	BlackAndWhite bool
	// BlackInLegend overrides near-black detection on the legend when set.
	BlackInLegend *bool
}

// ProbeConfig looks up the score of one color, or of one pixel of a map.
type ProbeConfig struct {
	LegendPath    string
	Calibration   legend.Calibration
	Color         *mcol.RGB
	MapPath       string
	X, Y          int
	BlackAndWhite bool
	BlackInLegend *bool
}

const usage = `Usage: geomapscore <command> [options]

Commands:
  score    Score a map image against a legend image
  probe    Show which legend band a color or map pixel scores as
  serve    Run the HTTP API
  version  Print version information

Run "geomapscore <command> -h" for command options.

Example:
  geomapscore score --legend=legend.png --map=map.png --out=scored.png --min=0 --max=10 --segments=10
`

// Parse parses CLI arguments (without the program name) and returns a
// validated Config. Usage goes to stderr.
func Parse(args []string) (Config, error) {
	return parse(args, os.Stderr)
}

func parse(args []string, stderr io.Writer) (Config, error) {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return Config{}, fmt.Errorf("a command is required")
	}

	cfg := Config{Command: Command(args[0])}
	var err error
	switch cfg.Command {
	case CommandScore:
		err = parseScore(&cfg, args[1:], stderr)
	case CommandProbe:
		err = parseProbe(&cfg, args[1:], stderr)
	case CommandServe:
		err = parseServe(&cfg, args[1:], stderr)
	case CommandVersion:
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stderr, usage)
		return Config{}, ErrHelp
	default:
		fmt.Fprint(stderr, usage)
		return Config{}, fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newFlagSet(name string, stderr io.Writer, cfg *Config, example string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogPretty, "log-pretty", true, "Human-readable log output")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: geomapscore %s [options]\n\nOptions:\n", name)
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExample:\n  %s\n", example)
	}
	return fs
}

// calibrationFlags registers the textual calibration inputs.
type calibrationFlags struct {
	min, max, segments *string
}

func addCalibrationFlags(fs *flag.FlagSet) calibrationFlags {
	def := legend.DefaultCalibration()
	return calibrationFlags{
		min:      fs.String("min", formatFloat(def.MinScore), "Score of the top legend band"),
		max:      fs.String("max", formatFloat(def.MaxScore), "Score of the bottom legend band"),
		segments: fs.String("segments", strconv.Itoa(def.Segments), "Number of bands the legend is split into (> 0)"),
	}
}

func (c calibrationFlags) parse() (legend.Calibration, error) {
	cal, err := legend.ParseCalibration(*c.min, *c.max, *c.segments)
	if err != nil {
		return legend.Calibration{}, fmt.Errorf("calibration: %w", err)
	}
	return cal, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parseBlackInLegend maps "auto", "true" and "false" to an override.
func parseBlackInLegend(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("--black-in-legend must be auto, true or false, got %q", s)
	}
	return &v, nil
}

func requirePNG(flagName, path string) error {
	if path == "" {
		return nil
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" {
		return fmt.Errorf("--%s must be a .png file, got %q", flagName, ext)
	}
	return nil
}

func parseScore(cfg *Config, args []string, stderr io.Writer) error {
	fs := newFlagSet("score", stderr, cfg,
		"geomapscore score --legend=legend.png --map=map.png --out=scored.png --min=0 --max=10 --segments=10")
	sc := &cfg.Score
	fs.StringVar(&sc.LegendPath, "legend", "", "Path to the legend image (required, vertical color bar)")
	fs.StringVar(&sc.MapPath, "map", "", "Path to the map image (required)")
	fs.StringVar(&sc.OutPath, "out", "", "Path to the rendered result image (required, must be .png)")
	fs.StringVar(&sc.HeatPath, "heat", "", "Optional path to a greyscale score heat image (.png)")
	fs.StringVar(&sc.CSVPath, "csv", "", "Optional path to a CSV export of the per-pixel scores")
	fs.StringVar(&sc.FlatPath, "flat-legend", "", "Optional path to the flat legend image (.png)")
	fs.BoolVar(&sc.BlackAndWhite, "bw", false, "Black-and-white map: keep grey pixels as data")
	blackIn := fs.String("black-in-legend", "auto", "Whether the legend contains black (auto, true, false)")
	cal := addCalibrationFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if sc.LegendPath == "" {
		return fmt.Errorf("--legend is required")
	}
	if sc.MapPath == "" {
		return fmt.Errorf("--map is required")
	}
	if sc.OutPath == "" {
		return fmt.Errorf("--out is required")
	}
	if err := errors.Join(
		requirePNG("out", sc.OutPath),
		requirePNG("heat", sc.HeatPath),
		requirePNG("flat-legend", sc.FlatPath),
	); err != nil {
		return err
	}

	var err error
	if sc.Calibration, err = cal.parse(); err != nil {
		return err
	}
	sc.BlackInLegend, err = parseBlackInLegend(*blackIn)
	return err
}

func parseProbe(cfg *Config, args []string, stderr io.Writer) error {
	fs := newFlagSet("probe", stderr, cfg,
		"geomapscore probe --legend=legend.png --color=#3a7f2c --min=0 --max=10")
	pc := &cfg.Probe
	fs.StringVar(&pc.LegendPath, "legend", "", "Path to the legend image (required)")
	colorStr := fs.String("color", "", "Color to look up (#rrggbb or r,g,b)")
	fs.StringVar(&pc.MapPath, "map", "", "Map image to probe a pixel of (with --x and --y)")
	fs.IntVar(&pc.X, "x", -1, "Pixel column in the map")
	fs.IntVar(&pc.Y, "y", -1, "Pixel row in the map")
	fs.BoolVar(&pc.BlackAndWhite, "bw", false, "Black-and-white map: keep grey pixels as data")
	blackIn := fs.String("black-in-legend", "auto", "Whether the legend contains black (auto, true, false)")
	cal := addCalibrationFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if pc.LegendPath == "" {
		return fmt.Errorf("--legend is required")
	}
	switch {
	case *colorStr != "" && pc.MapPath != "":
		return fmt.Errorf("--color and --map are mutually exclusive")
	case *colorStr != "":
		c, err := mcol.Parse(*colorStr)
		if err != nil {
			return fmt.Errorf("--color: %w", err)
		}
		pc.Color = &c
	case pc.MapPath != "":
		if pc.X < 0 || pc.Y < 0 {
			return fmt.Errorf("--x and --y must be >= 0 when probing a map, got (%d,%d)", pc.X, pc.Y)
		}
	default:
		return fmt.Errorf("one of --color or --map is required")
	}

	var err error
	if pc.Calibration, err = cal.parse(); err != nil {
		return err
	}
	pc.BlackInLegend, err = parseBlackInLegend(*blackIn)
	return err
}

func parseServe(cfg *Config, args []string, stderr io.Writer) error {
	env := config.FromEnv()
	fs := newFlagSet("serve", stderr, cfg, "geomapscore serve --addr=:8080 --db-driver=sqlite")
	sv := &cfg.Serve
	fs.StringVar(&sv.HTTPAddr, "addr", env.HTTPAddr, "HTTP listen address (env HTTP_ADDR)")
	fs.StringVar(&sv.DBDriver, "db-driver", env.DBDriver, "Run history database: sqlite, postgres or none (env DB_DRIVER)")
	fs.StringVar(&sv.DBDSN, "db-dsn", env.DBDSN, "Database DSN (env DB_DSN)")
	origins := fs.String("cors-origins", strings.Join(env.CORSOrigins, ","), "Comma-separated allowed origins (env CORS_ORIGINS)")
	fs.IntVar(&sv.MaxUploadMB, "max-upload-mb", env.MaxUploadMB, "Maximum upload size in MiB (env MAX_UPLOAD_MB)")
	fs.IntVar(&sv.MaxPixels, "max-pixels", env.MaxPixels, "Maximum width*height of an uploaded image (env MAX_PIXELS)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	// Log settings come from the environment unless given on the command line.
	cfg.LogLevel, cfg.LogPretty = env.LogLevel, env.LogPretty
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = f.Value.String()
		case "log-pretty":
			cfg.LogPretty, _ = strconv.ParseBool(f.Value.String())
		}
	})
	sv.LogLevel, sv.LogPretty = cfg.LogLevel, cfg.LogPretty

	switch sv.DBDriver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("--db-driver must be sqlite, postgres or none, got %q", sv.DBDriver)
	}
	if sv.MaxUploadMB <= 0 {
		return fmt.Errorf("--max-upload-mb must be > 0, got %d", sv.MaxUploadMB)
	}
	if sv.MaxPixels <= 0 {
		return fmt.Errorf("--max-pixels must be > 0, got %d", sv.MaxPixels)
	}
	sv.CORSOrigins = nil
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			sv.CORSOrigins = append(sv.CORSOrigins, o)
		}
	}
	return nil
}
