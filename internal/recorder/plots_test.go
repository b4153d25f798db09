package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strandbotics/homebase/internal/geom"
	"github.com/strandbotics/homebase/internal/trialstore"
)

func TestSavePlots(t *testing.T) {
	store := newTestStore(t)

	id := insertFrames(t, store, []trialstore.Frame{
		{T: 0.0, BasePose: geom.Pose2{X: 0, Y: 0}},
		{T: 0.5, BasePose: geom.Pose2{X: 0.1, Y: 0.02}, Keyframe: true},
		{T: 1.0, BasePose: geom.Pose2{X: 0.25, Y: 0.05}},
		{T: 1.5, BasePose: geom.Pose2{X: 0.4, Y: 0.1}},
	})

	outputDir := filepath.Join(t.TempDir(), "plots")
	paths, err := SavePlots(store, id, outputDir)
	if err != nil {
		t.Fatalf("SavePlots returned error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("SavePlots returned %d paths, want 2", len(paths))
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("Plot file missing: %v", err)
		}
		if info.Size() == 0 {
			t.Errorf("Plot file %s is empty", p)
		}
	}
}

func TestSavePlots_NoFrames(t *testing.T) {
	store := newTestStore(t)

	id := insertFrames(t, store, nil)

	if _, err := SavePlots(store, id, t.TempDir()); err == nil {
		t.Fatal("Expected an error plotting a trial with no frames")
	}
}
