package recorder

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"

	"github.com/strandbotics/homebase/internal/camera"
	"github.com/strandbotics/homebase/internal/security"
	"github.com/strandbotics/homebase/internal/trialstore"
)

// ExportGIF renders the RGB stream of a trial as an animated GIF at the
// given frame rate. Frames recorded without an RGB still are skipped.
// imageRoot is the recorder directory the stored image paths are relative to.
func ExportGIF(store *trialstore.Store, imageRoot, trialID, outPath string, fps int) error {
	if fps <= 0 {
		fps = 10
	}
	frames, err := store.Frames(trialID)
	if err != nil {
		return err
	}

	anim := &gif.GIF{}
	// GIF frame delay is in hundredths of a second
	delay := 100 / fps
	if delay < 1 {
		delay = 1
	}
	for _, frame := range frames {
		if frame.RGBPath == "" {
			continue
		}
		// Stored paths come from the database, which may have been copied
		// from another machine. Refuse anything that resolves outside the
		// recording directory.
		imagePath := filepath.Join(imageRoot, frame.RGBPath)
		if err := security.ValidatePathWithinDirectory(imagePath, imageRoot); err != nil {
			return fmt.Errorf("frame %d has an unsafe image path: %w", frame.Index, err)
		}
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read frame %d: %w", frame.Index, err)
		}
		img, err := camera.DecodeRGB(data)
		if err != nil {
			return fmt.Errorf("failed to decode frame %d: %w", frame.Index, err)
		}
		paletted := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, img.Bounds(), img, image.Point{})
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}
	if len(anim.Image) == 0 {
		return fmt.Errorf("trial %s has no RGB frames", trialID)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := gif.EncodeAll(out, anim); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return nil
}
