// Command trialshow renders recorded trials into review artifacts: an
// animated GIF of the camera stream, odometry track and speed plots, and a
// standalone HTML review page. Run without -trial to list the trials in the
// database.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strandbotics/homebase/internal/recorder"
	"github.com/strandbotics/homebase/internal/trialstore"
	"github.com/strandbotics/homebase/internal/units"
)

func main() {
	var dbPath string
	var trialID string
	var gifPath string
	var plotDir string
	var htmlPath string
	var imageRoot string
	var tz string
	var fps int
	var limit int

	flag.StringVar(&dbPath, "db", "trials.db", "path to the trial database")
	flag.StringVar(&trialID, "trial", "", "trial id to render; empty lists recent trials")
	flag.StringVar(&gifPath, "gif", "", "write an animated GIF of the camera stream to this file")
	flag.StringVar(&plotDir, "plot", "", "write track and speed plots into this directory")
	flag.StringVar(&htmlPath, "html", "", "write an HTML review page to this file")
	flag.StringVar(&imageRoot, "images", "", "directory the stored image paths are relative to (default: trials next to the database)")
	flag.StringVar(&tz, "tz", "Local", "timezone for listed timestamps (e.g. America/New_York)")
	flag.IntVar(&fps, "fps", 10, "GIF playback rate in frames per second")
	flag.IntVar(&limit, "limit", 50, "number of trials to list")
	flag.Parse()

	if !units.IsTimezoneValid(tz) {
		log.Fatalf("invalid timezone %q", tz)
	}

	store, err := trialstore.Open(dbPath)
	if err != nil {
		log.Fatalf("open trial database: %v", err)
	}
	defer store.Close()

	if trialID == "" {
		if err := listTrials(os.Stdout, store, limit, tz); err != nil {
			log.Fatalf("list trials: %v", err)
		}
		return
	}

	if imageRoot == "" {
		imageRoot = filepath.Join(filepath.Dir(dbPath), "trials")
	}
	if err := showTrial(os.Stdout, store, trialID, imageRoot, gifPath, plotDir, htmlPath, fps); err != nil {
		log.Fatalf("render trial: %v", err)
	}
}

// listTrials prints the trial table, newest first, with timestamps shown in
// the requested timezone.
func listTrials(w io.Writer, store *trialstore.Store, limit int, tz string) error {
	trials, err := store.ListTrials(limit)
	if err != nil {
		return err
	}
	if len(trials) == 0 {
		fmt.Fprintln(w, "no trials recorded")
		return nil
	}

	now := time.Now()
	fmt.Fprintf(w, "%-36s %-20s %-10s %-7s %s\n", "TRIAL", "STARTED", "DURATION", "FRAMES", "TASK")
	for _, trial := range trials {
		frames, err := store.FrameCount(trial.ID)
		if err != nil {
			return err
		}
		started, err := units.ConvertTime(trial.StartedAt, tz)
		if err != nil {
			return err
		}
		duration := trial.Duration(now).Round(time.Second).String()
		if trial.EndedAt == nil {
			duration += "*"
		}
		fmt.Fprintf(w, "%-36s %-20s %-10s %-7d %s\n",
			trial.ID,
			started.Format("2006-01-02 15:04:05"),
			duration,
			frames,
			trial.Task)
	}
	return nil
}

// showTrial prints a trial summary and writes the requested artifacts.
func showTrial(w io.Writer, store *trialstore.Store, trialID, imageRoot, gifPath, plotDir, htmlPath string, fps int) error {
	trial, err := store.GetTrial(trialID)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, trial.String())
	if trial.Notes != "" {
		fmt.Fprintf(w, "Notes: %s\n", trial.Notes)
	}

	count, err := store.FrameCount(trialID)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Fprintln(w, "no frames recorded")
		return nil
	}

	stats, err := recorder.ComputeStats(store, trialID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Frames: %d (%d keyframes) over %.1fs\n", stats.Frames, stats.Keyframes, stats.Duration)
	fmt.Fprintf(w, "Path: %.2fm, mean speed %.3f m/s, max %.3f m/s\n", stats.PathLength, stats.MeanSpeed, stats.MaxSpeed)

	if gifPath != "" {
		if err := recorder.ExportGIF(store, imageRoot, trialID, gifPath, fps); err != nil {
			return fmt.Errorf("gif export: %w", err)
		}
		fmt.Fprintf(w, "wrote %s\n", gifPath)
	}
	if plotDir != "" {
		written, err := recorder.SavePlots(store, trialID, plotDir)
		if err != nil {
			return fmt.Errorf("plots: %w", err)
		}
		for _, path := range written {
			fmt.Fprintf(w, "wrote %s\n", path)
		}
	}
	if htmlPath != "" {
		out, err := os.Create(htmlPath)
		if err != nil {
			return err
		}
		if err := recorder.WriteReview(out, store, trialID); err != nil {
			out.Close()
			return fmt.Errorf("review page: %w", err)
		}
		if err := out.Close(); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", htmlPath)
	}
	return nil
}
