package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
	"github.com/Ayoubbar/geomapscore/internal/renderer"
	"github.com/Ayoubbar/geomapscore/internal/session"
	"github.com/Ayoubbar/geomapscore/internal/store"
	"github.com/Ayoubbar/geomapscore/internal/version"
)

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

type sampleJSON struct {
	Index  int     `json:"index"`
	Color  string  `json:"color"`
	Score  float64 `json:"score"`
	Pixels int     `json:"pixels"`
	Filled bool    `json:"filled,omitempty"`
}

type legendResponse struct {
	Version  int          `json:"version"`
	MinScore float64      `json:"min_score"`
	MaxScore float64      `json:"max_score"`
	Segments int          `json:"segments"`
	HasBlack bool         `json:"has_black"`
	Samples  []sampleJSON `json:"samples"`
}

type scoreResponse struct {
	RunID          string   `json:"run_id"`
	LegendVersion  int      `json:"legend_version"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	AverageScore   float64  `json:"average_score"`
	AverageLabel   string   `json:"average_label"`
	TotalScore     float64  `json:"total_score"`
	PixelCount     int      `json:"pixel_count"`
	StdDev         float64  `json:"std_dev"`
	MatchedColors  []string `json:"matched_colors"`
	Counts         []int    `json:"counts"`
	BlackAndWhite  bool     `json:"black_and_white"`
	LegendHasBlack bool     `json:"legend_has_black"`
	GreyRewritten  int      `json:"grey_rewritten"`
	BlackRewritten int      `json:"black_rewritten"`
}

type probeResponse struct {
	Color      string  `json:"color"`
	Index      int     `json:"index"`
	Sample     string  `json:"sample_color"`
	Score      float64 `json:"score"`
	ScoreLabel string  `json:"score_label"`
	Background bool    `json:"background"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	img, _, err := s.readImage(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	def := legend.DefaultCalibration()
	cal, err := legend.ParseCalibration(
		formOr(r, "min_score", strconv.FormatFloat(def.MinScore, 'g', -1, 64)),
		formOr(r, "max_score", strconv.FormatFloat(def.MaxScore, 'g', -1, 64)),
		formOr(r, "segments", strconv.Itoa(def.Segments)),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.sess.Calibrate(imaging.FromImage(img), cal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLegendResponse(snap))
}

func (s *Server) getLegend(w http.ResponseWriter, r *http.Request) {
	snap, err := s.current()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLegendResponse(snap))
}

func (s *Server) legendImage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.current()
	if err != nil {
		writeError(w, err)
		return
	}
	writePNG(w, snap.Legend.FlatImage(legend.DefaultFlatWidth))
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	img, name, err := s.readImage(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	bw, err := parseBoolForm(r, "black_and_white")
	if err != nil {
		writeError(w, err)
		return
	}
	opts := aggregation.Options{BlackAndWhite: bw}
	if v := strings.ToLower(strings.TrimSpace(r.FormValue("black_in_legend"))); v != "" && v != "auto" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: black_in_legend must be auto, true or false", errBadRequest))
			return
		}
		opts.LegendHasBlack = &b
	}

	ev, err := s.sess.Score(imaging.FromImage(img), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toScoreResponse(ev)
	resp.RunID = s.recordRun(r, ev, name, resp.MatchedColors)
	writeJSON(w, http.StatusOK, resp)
}

// recordRun stores the evaluation when history is enabled and returns its
// id. A storage failure is logged and does not fail the request.
func (s *Server) recordRun(r *http.Request, ev *session.Evaluation, mapName string, colors []string) string {
	if s.runs == nil {
		return uuid.NewString()
	}
	cal := ev.Legend.Calibration
	run, err := s.runs.SaveRun(r.Context(), store.Run{
		CreatedAt:      ev.ScoredAt,
		MapName:        mapName,
		MinScore:       cal.MinScore,
		MaxScore:       cal.MaxScore,
		Segments:       cal.Segments,
		BlackAndWhite:  ev.Result.BlackAndWhite,
		LegendHasBlack: ev.Result.LegendHasBlack,
		LegendVersion:  ev.LegendVersion,
		AverageScore:   ev.Result.AverageScore,
		PixelCount:     ev.Result.PixelCount,
		MatchedColors:  colors,
	})
	if err != nil {
		log.Error().Err(err).Msg("saving run")
		return uuid.NewString()
	}
	return run.ID
}

func (s *Server) resultImage(w http.ResponseWriter, r *http.Request) {
	ev, err := s.last()
	if err != nil {
		writeError(w, err)
		return
	}
	cfg := renderer.DefaultConfig()
	cfg.ScaleForWidth(ev.Processed.Width)
	writePNG(w, renderer.Render(ev.Processed, ev.Legend, ev.Result, s.font, cfg))
}

func (s *Server) heatImage(w http.ResponseWriter, r *http.Request) {
	ev, err := s.last()
	if err != nil {
		writeError(w, err)
		return
	}
	cal := ev.Legend.Calibration
	writePNG(w, renderer.Heat(ev.Result.ScoreMap, cal.MinScore, cal.MaxScore))
}

func (s *Server) scoreCSV(w http.ResponseWriter, r *http.Request) {
	ev, err := s.last()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="scores.csv"`)
	if err := renderer.WriteCSV(w, ev.Result.ScoreMap); err != nil {
		log.Error().Err(err).Msg("writing score map")
	}
}

func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		p   session.Probe
		err error
	)
	if cs := q.Get("color"); cs != "" {
		c, perr := mcol.Parse(cs)
		if perr != nil {
			writeError(w, fmt.Errorf("%w: %v", errBadRequest, perr))
			return
		}
		p, err = s.sess.ProbeColor(c)
	} else {
		x, xerr := strconv.Atoi(q.Get("x"))
		y, yerr := strconv.Atoi(q.Get("y"))
		if xerr != nil || yerr != nil {
			writeError(w, fmt.Errorf("%w: color or integer x and y required", errBadRequest))
			return
		}
		p, err = s.sess.ProbeAt(x, y)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, probeResponse{
		Color:      p.Color.Hex(),
		Index:      p.Index,
		Sample:     p.Sample.Color.Hex(),
		Score:      p.Sample.Score,
		ScoreLabel: strconv.FormatFloat(p.Sample.Score, 'f', 1, 64),
		Background: p.Background,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeErr(w, http.StatusNotFound, "run history is disabled")
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), parseLimit(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) current() (*session.Snapshot, error) {
	snap := s.sess.Current()
	if snap == nil {
		return nil, fmt.Errorf("%w: no legend calibrated", aggregation.ErrPrecondition)
	}
	return snap, nil
}

func (s *Server) last() (*session.Evaluation, error) {
	ev := s.sess.Last()
	if ev == nil {
		return nil, fmt.Errorf("%w: no map scored", aggregation.ErrPrecondition)
	}
	return ev, nil
}

// readImage decodes the multipart "image" field and returns it with its
// file name.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (image.Image, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		return nil, "", fmt.Errorf("%w: image field: %v", errBadRequest, err)
	}
	defer f.Close()
	img, _, err := imaging.DecodeLimited(f, s.maxPixels)
	if errors.Is(err, imaging.ErrTooLarge) {
		return nil, "", err
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return img, hdr.Filename, nil
}

func formOr(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func parseBoolForm(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errBadRequest, key)
	}
	return b, nil
}

func toLegendResponse(snap *session.Snapshot) legendResponse {
	l := snap.Legend
	resp := legendResponse{
		Version:  snap.Version,
		MinScore: l.Calibration.MinScore,
		MaxScore: l.Calibration.MaxScore,
		Segments: l.Calibration.Segments,
		HasBlack: l.HasNearBlack(),
		Samples:  make([]sampleJSON, len(l.Samples)),
	}
	for i, sm := range l.Samples {
		resp.Samples[i] = sampleJSON{Index: i, Color: sm.Color.Hex(), Score: sm.Score, Pixels: sm.Pixels, Filled: sm.Filled}
	}
	return resp
}

func toScoreResponse(ev *session.Evaluation) scoreResponse {
	res := ev.Result
	colors := []string{}
	for _, c := range res.MatchedColors.Sorted() {
		colors = append(colors, c.Hex())
	}
	return scoreResponse{
		LegendVersion:  ev.LegendVersion,
		Width:          ev.Processed.Width,
		Height:         ev.Processed.Height,
		AverageScore:   res.AverageScore,
		AverageLabel:   renderer.ScoreLabel(res.AverageScore),
		TotalScore:     res.TotalScore,
		PixelCount:     res.PixelCount,
		StdDev:         res.StdDev(),
		MatchedColors:  colors,
		Counts:         res.Counts,
		BlackAndWhite:  res.BlackAndWhite,
		LegendHasBlack: res.LegendHasBlack,
		GreyRewritten:  res.Rewrites.GreyRewritten,
		BlackRewritten: res.Rewrites.BlackRewritten,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, legend.ErrConfiguration), errors.Is(err, errBadRequest), errors.Is(err, session.ErrOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, aggregation.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, imaging.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeErr(w, status, err.Error())
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		log.Error().Err(err).Msg("encoding png")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}
