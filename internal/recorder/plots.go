package recorder

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/strandbotics/homebase/internal/trialstore"
)

// SavePlots renders the odometry track and the speed profile of a trial as
// PNG files in outputDir and returns the paths written.
func SavePlots(store *trialstore.Store, trialID, outputDir string) ([]string, error) {
	frames, err := store.Frames(trialID)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("trial %s has no frames", trialID)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	trackPts := make(plotter.XYs, 0, len(frames))
	speedPts := make(plotter.XYs, 0, len(frames))
	var keyframePts plotter.XYs
	t0 := frames[0].T
	for i, frame := range frames {
		trackPts = append(trackPts, plotter.XY{X: frame.BasePose.X, Y: frame.BasePose.Y})
		if frame.Keyframe {
			keyframePts = append(keyframePts, plotter.XY{X: frame.BasePose.X, Y: frame.BasePose.Y})
		}
		if i > 0 {
			if dt := frame.T - frames[i-1].T; dt > 0 {
				dist := math.Hypot(
					frame.BasePose.X-frames[i-1].BasePose.X,
					frame.BasePose.Y-frames[i-1].BasePose.Y)
				speedPts = append(speedPts, plotter.XY{X: frame.T - t0, Y: dist / dt})
			}
		}
	}

	pTrack := plot.New()
	pTrack.Title.Text = fmt.Sprintf("Trial %s - Base Track", shortID(trialID))
	pTrack.X.Label.Text = "X (m)"
	pTrack.Y.Label.Text = "Y (m)"

	trackLine, err := plotter.NewLine(trackPts)
	if err != nil {
		return nil, err
	}
	trackLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	trackLine.Width = vg.Points(1)
	pTrack.Add(trackLine)
	pTrack.Legend.Add("odometry", trackLine)

	if len(keyframePts) > 0 {
		marks, err := plotter.NewScatter(keyframePts)
		if err != nil {
			return nil, err
		}
		marks.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		marks.GlyphStyle.Radius = vg.Points(3)
		pTrack.Add(marks)
		pTrack.Legend.Add("keyframes", marks)
	}
	pTrack.Legend.Top = true

	trackFile := filepath.Join(outputDir, "track.png")
	if err := pTrack.Save(8*vg.Inch, 8*vg.Inch, trackFile); err != nil {
		return nil, fmt.Errorf("save track plot: %w", err)
	}

	pSpeed := plot.New()
	pSpeed.Title.Text = fmt.Sprintf("Trial %s - Speed", shortID(trialID))
	pSpeed.X.Label.Text = "Time (s)"
	pSpeed.Y.Label.Text = "Speed (m/s)"

	if len(speedPts) > 0 {
		speedLine, err := plotter.NewLine(speedPts)
		if err != nil {
			return nil, err
		}
		speedLine.Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
		speedLine.Width = vg.Points(1)
		pSpeed.Add(speedLine)
	}

	speedFile := filepath.Join(outputDir, "speed.png")
	if err := pSpeed.Save(14*vg.Inch, 6*vg.Inch, speedFile); err != nil {
		return nil, fmt.Errorf("save speed plot: %w", err)
	}

	return []string{trackFile, speedFile}, nil
}

// shortID truncates a trial uuid for titles.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
