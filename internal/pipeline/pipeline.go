package pipeline

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	"github.com/Ayoubbar/geomapscore/internal/cli"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
	"github.com/Ayoubbar/geomapscore/internal/renderer"
	"github.com/Ayoubbar/geomapscore/internal/session"
)

// Run executes a full scoring run with the given configuration and returns
// the evaluation.
func Run(cfg cli.ScoreConfig, font renderer.FontRenderer) (*session.Evaluation, error) {
	s := session.New()

	// Step 1: Calibrate the legend
	snap, err := calibrate(s, cfg.LegendPath, cfg.Calibration)
	if err != nil {
		return nil, err
	}
	if cfg.FlatPath != "" {
		fmt.Printf("Saving flat legend: %s\n", cfg.FlatPath)
		if err := imaging.SavePNG(cfg.FlatPath, snap.Legend.FlatImage(legend.DefaultFlatWidth)); err != nil {
			return nil, fmt.Errorf("saving flat legend: %w", err)
		}
	}

	// Step 2: Load and score the map
	ev, err := score(s, cfg.MapPath, options(cfg.BlackAndWhite, cfg.BlackInLegend))
	if err != nil {
		return nil, err
	}
	res := ev.Result
	printSummary(ev)

	// Step 3: Render output image
	fmt.Println("Rendering output...")
	rcfg := renderer.DefaultConfig()
	rcfg.ScaleForWidth(ev.Processed.Width)
	output := renderer.Render(ev.Processed, ev.Legend, res, font, rcfg)

	// Step 4: Save outputs
	fmt.Printf("Saving output: %s\n", cfg.OutPath)
	if err := imaging.SavePNG(cfg.OutPath, output); err != nil {
		return nil, fmt.Errorf("saving output: %w", err)
	}
	if cfg.HeatPath != "" {
		fmt.Printf("Saving heat image: %s\n", cfg.HeatPath)
		heat := renderer.Heat(res.ScoreMap, cfg.Calibration.MinScore, cfg.Calibration.MaxScore)
		if err := imaging.SavePNG(cfg.HeatPath, heat); err != nil {
			return nil, fmt.Errorf("saving heat image: %w", err)
		}
	}
	if cfg.CSVPath != "" {
		fmt.Printf("Saving score map: %s\n", cfg.CSVPath)
		if err := saveCSV(cfg.CSVPath, res.ScoreMap); err != nil {
			return nil, fmt.Errorf("saving score map: %w", err)
		}
	}

	fmt.Println("Done!")
	return ev, nil
}

// Probe reports which legend band a color, or a pixel of the processed
// map, scores as.
func Probe(cfg cli.ProbeConfig) (session.Probe, error) {
	s := session.New()
	if _, err := calibrate(s, cfg.LegendPath, cfg.Calibration); err != nil {
		return session.Probe{}, err
	}

	if cfg.Color != nil {
		return s.ProbeColor(*cfg.Color)
	}
	if _, err := score(s, cfg.MapPath, options(cfg.BlackAndWhite, cfg.BlackInLegend)); err != nil {
		return session.Probe{}, err
	}
	return s.ProbeAt(cfg.X, cfg.Y)
}

func calibrate(s *session.Session, path string, cal legend.Calibration) (*session.Snapshot, error) {
	fmt.Printf("Loading legend: %s\n", path)
	img, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading legend: %w", err)
	}
	fmt.Printf("Legend loaded: %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy())

	fmt.Printf("Segmenting legend into %d bands (%g to %g)...\n", cal.Segments, cal.MinScore, cal.MaxScore)
	snap, err := s.Calibrate(imaging.FromImage(img), cal)
	if err != nil {
		return nil, fmt.Errorf("segmenting legend: %w", err)
	}
	for i, sm := range snap.Legend.Samples {
		if sm.Filled {
			log.Warn().Int("band", i).Str("color", sm.Color.Hex()).Msg("legend band has no colored pixels, borrowed neighbour color")
		}
	}
	return snap, nil
}

func score(s *session.Session, path string, opts aggregation.Options) (*session.Evaluation, error) {
	fmt.Printf("Loading map: %s\n", path)
	img, err := imaging.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading map: %w", err)
	}
	fmt.Printf("Map loaded: %dx%d\n", img.Bounds().Dx(), img.Bounds().Dy())

	fmt.Println("Scoring map...")
	ev, err := s.Score(imaging.FromImage(img), opts)
	if err != nil {
		return nil, fmt.Errorf("scoring map: %w", err)
	}
	return ev, nil
}

func options(blackAndWhite bool, blackInLegend *bool) aggregation.Options {
	return aggregation.Options{BlackAndWhite: blackAndWhite, LegendHasBlack: blackInLegend}
}

func printSummary(ev *session.Evaluation) {
	res := ev.Result
	total := ev.Processed.Width * ev.Processed.Height
	pct := 0.0
	if total > 0 {
		pct = float64(res.PixelCount) / float64(total) * 100
	}
	fmt.Printf("Background rewritten: %d grey, %d black\n", res.Rewrites.GreyRewritten, res.Rewrites.BlackRewritten)
	fmt.Printf("Scored pixels: %d / %d (%.1f%%)\n", res.PixelCount, total, pct)
	fmt.Printf("Legend colors matched: %d / %d\n", len(res.MatchedColors), len(ev.Legend.Samples))
	fmt.Printf("Average score: %s\n", renderer.ScoreLabel(res.AverageScore))
	fmt.Printf("Standard deviation: %.2f\n", res.StdDev())
}

func saveCSV(path string, sm *aggregation.ScoreMap) error {
	f, err := os.Create(imaging.ExpandPath(path))
	if err != nil {
		return err
	}
	if err := renderer.WriteCSV(f, sm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
