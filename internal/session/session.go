// Package session holds the state a caller keeps between operations: the
// current calibrated legend and the last scored map.
//
// A legend is never modified in place. Calibrate builds a complete new
// snapshot and swaps it in; Score captures the snapshot once, so a map scan
// always runs against one consistent sample sequence even if the legend is
// recalibrated concurrently.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	"github.com/Ayoubbar/geomapscore/internal/classify"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
	"github.com/Ayoubbar/geomapscore/internal/matching"
)

// ErrOutOfBounds is returned when a probed pixel lies outside the map.
var ErrOutOfBounds = errors.New("pixel outside map")

// Snapshot is one immutable calibrated legend.
type Snapshot struct {
	Version int
	Legend  *legend.Legend
}

// Evaluation is one scored map.
type Evaluation struct {
	LegendVersion int
	Legend        *legend.Legend
	Result        *aggregation.Result
	Processed     *imaging.Raster
	ScoredAt      time.Time
}

// Probe describes what one map pixel or color scores.
type Probe struct {
	Color      mcol.RGB
	Index      int
	Sample     legend.Sample
	Background bool // the pixel is near-white and excluded from the average
}

// Session is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	snap    *Snapshot
	last    *Evaluation
	version int
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// Calibrate segments a legend image and makes it current. On error the
// previous legend stays in place.
func (s *Session) Calibrate(r *imaging.Raster, cal legend.Calibration) (*Snapshot, error) {
	l, err := legend.Segment(r, cal)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.version++
	snap := &Snapshot{Version: s.version, Legend: l}
	s.snap = snap
	s.mu.Unlock()

	filled := 0
	for _, sm := range l.Samples {
		if sm.Filled {
			filled++
		}
	}
	log.Debug().
		Int("version", snap.Version).
		Int("segments", cal.Segments).
		Float64("min_score", cal.MinScore).
		Float64("max_score", cal.MaxScore).
		Int("filled_bands", filled).
		Msg("legend calibrated")
	return snap, nil
}

// Current returns the current legend snapshot, or nil before calibration.
func (s *Session) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Score evaluates a map against the current legend and records it as the
// last evaluation. On error the previous evaluation stays in place.
func (s *Session) Score(r *imaging.Raster, opts aggregation.Options) (*Evaluation, error) {
	snap := s.Current()
	if snap == nil {
		return nil, fmt.Errorf("%w: no legend calibrated", aggregation.ErrPrecondition)
	}

	res, processed, err := aggregation.Score(r, snap.Legend.Samples, opts)
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{
		LegendVersion: snap.Version,
		Legend:        snap.Legend,
		Result:        res,
		Processed:     processed,
		ScoredAt:      time.Now(),
	}

	s.mu.Lock()
	s.last = ev
	s.mu.Unlock()

	log.Debug().
		Int("legend_version", snap.Version).
		Int("pixels", res.PixelCount).
		Float64("average", res.AverageScore).
		Msg("map scored")
	return ev, nil
}

// Last returns the last successful evaluation, or nil.
func (s *Session) Last() *Evaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// ProbeColor reports which sample of the current legend c maps to.
func (s *Session) ProbeColor(c mcol.RGB) (Probe, error) {
	snap := s.Current()
	if snap == nil {
		return Probe{}, fmt.Errorf("%w: no legend calibrated", aggregation.ErrPrecondition)
	}
	return probe(c, snap.Legend.Samples), nil
}

// ProbeAt reports the score of pixel (x, y) of the last processed map,
// using the legend that map was scored with.
func (s *Session) ProbeAt(x, y int) (Probe, error) {
	ev := s.Last()
	if ev == nil {
		return Probe{}, fmt.Errorf("%w: no map scored", aggregation.ErrPrecondition)
	}
	if !ev.Processed.In(x, y) {
		return Probe{}, fmt.Errorf("%w: (%d,%d) not in %dx%d", ErrOutOfBounds, x, y, ev.Processed.Width, ev.Processed.Height)
	}
	return probe(ev.Processed.At(x, y), ev.Legend.Samples), nil
}

func probe(c mcol.RGB, samples []legend.Sample) Probe {
	i := matching.Match(c, samples)
	return Probe{
		Color:      c,
		Index:      i,
		Sample:     samples[i],
		Background: classify.IsNearWhite(c),
	}
}
