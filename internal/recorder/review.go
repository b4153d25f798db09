package recorder

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/strandbotics/homebase/internal/trialstore"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WriteReview renders an HTML review page for a trial: the odometry track
// with keyframe markers, the speed profile and the gripper aperture over
// time.
func WriteReview(w io.Writer, store *trialstore.Store, trialID string) error {
	trial, err := store.GetTrial(trialID)
	if err != nil {
		return err
	}
	frames, err := store.Frames(trialID)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("trial %s has no frames", trialID)
	}
	stats, err := statsFromFrames(trialID, frames)
	if err != nil {
		return err
	}

	subtitle := fmt.Sprintf("task=%s operator=%s frames=%d keyframes=%d path=%.2fm",
		trial.Task, trial.Operator, stats.Frames, stats.Keyframes, stats.PathLength)

	trackData := make([]opts.ScatterData, 0, len(frames))
	var keyframeData []opts.ScatterData
	for _, frame := range frames {
		point := []interface{}{frame.BasePose.X, frame.BasePose.Y}
		trackData = append(trackData, opts.ScatterData{Value: point})
		if frame.Keyframe {
			keyframeData = append(keyframeData, opts.ScatterData{Value: point})
		}
	}

	track := charts.NewScatter()
	track.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trial Review", Theme: "dark", Width: "700px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Base Track", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	track.AddSeries("track", trackData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if len(keyframeData) > 0 {
		track.AddSeries("keyframes", keyframeData,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	}

	t0 := frames[0].T
	speedX := make([]string, 0, len(frames))
	speedData := make([]opts.LineData, 0, len(frames))
	for i := 1; i < len(frames); i++ {
		dt := frames[i].T - frames[i-1].T
		if dt <= 0 {
			continue
		}
		dist := math.Hypot(
			frames[i].BasePose.X-frames[i-1].BasePose.X,
			frames[i].BasePose.Y-frames[i-1].BasePose.Y)
		speedX = append(speedX, fmt.Sprintf("%.1f", frames[i].T-t0))
		speedData = append(speedData, opts.LineData{Value: dist / dt})
	}

	speed := charts.NewLine()
	speed.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Speed", Subtitle: "odometry-derived, m/s over seconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	speed.SetXAxis(speedX).AddSeries("speed", speedData)

	gripperX := make([]string, 0, len(frames))
	gripperData := make([]opts.LineData, 0, len(frames))
	for _, frame := range frames {
		gripperX = append(gripperX, fmt.Sprintf("%.1f", frame.T-t0))
		gripperData = append(gripperData, opts.LineData{Value: frame.Gripper})
	}

	gripper := charts.NewLine()
	gripper.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Gripper", Subtitle: "aperture over seconds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	gripper.SetXAxis(gripperX).AddSeries("gripper", gripperData)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(track, speed, gripper)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render review page: %w", err)
	}
	return nil
}
