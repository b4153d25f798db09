package recorder

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/strandbotics/homebase/internal/trialstore"
)

// TrialStats summarizes one recorded trial. Speeds are derived from the
// odometry track, not from the commanded velocities.
type TrialStats struct {
	TrialID     string  `json:"trial_id"`
	Frames      int     `json:"frames"`
	Keyframes   int     `json:"keyframes"`
	Duration    float64 `json:"duration_s"`
	PathLength  float64 `json:"path_length_m"`
	MeanSpeed   float64 `json:"mean_speed_mps"`
	MaxSpeed    float64 `json:"max_speed_mps"`
	SpeedStdDev float64 `json:"speed_stddev_mps"`
}

// ComputeStats loads a trial's frames and summarizes them.
func ComputeStats(store *trialstore.Store, trialID string) (TrialStats, error) {
	frames, err := store.Frames(trialID)
	if err != nil {
		return TrialStats{}, err
	}
	return statsFromFrames(trialID, frames)
}

func statsFromFrames(trialID string, frames []trialstore.Frame) (TrialStats, error) {
	if len(frames) == 0 {
		return TrialStats{}, fmt.Errorf("trial %s has no frames", trialID)
	}

	stats := TrialStats{TrialID: trialID, Frames: len(frames)}
	for _, frame := range frames {
		if frame.Keyframe {
			stats.Keyframes++
		}
	}
	stats.Duration = frames[len(frames)-1].T - frames[0].T

	speeds := make([]float64, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		dx := frames[i].BasePose.X - frames[i-1].BasePose.X
		dy := frames[i].BasePose.Y - frames[i-1].BasePose.Y
		dist := math.Hypot(dx, dy)
		stats.PathLength += dist
		if dt := frames[i].T - frames[i-1].T; dt > 0 {
			speeds = append(speeds, dist/dt)
		}
	}
	if len(speeds) > 0 {
		stats.MeanSpeed = stat.Mean(speeds, nil)
		stats.MaxSpeed = floats.Max(speeds)
	}
	if len(speeds) > 1 {
		stats.SpeedStdDev = stat.StdDev(speeds, nil)
	}
	return stats, nil
}
