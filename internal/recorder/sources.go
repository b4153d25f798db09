// Package recorder captures demonstration trials: a fixed-rate sampler joins
// the latest base telemetry with the latest camera frames and persists each
// sample through the trial store, plus export tooling for recorded trials.
package recorder

import (
	"log"
	"sync"

	"github.com/strandbotics/homebase/internal/camera"
)

// CameraCache keeps the most recent frame of each kind from the camera
// stream so the sampler can pair images with telemetry. It implements the
// camera listener's FrameHandler.
type CameraCache struct {
	mu     sync.Mutex
	rgb    []byte
	depth  []byte
	info   *camera.Info
	frames uint64
}

// CameraSnapshot is the camera state at one sampling instant. Slices are
// never mutated after being stored, so callers may keep them.
type CameraSnapshot struct {
	RGB   []byte
	Depth []byte
	Info  *camera.Info
}

// NewCameraCache creates an empty cache.
func NewCameraCache() *CameraCache {
	return &CameraCache{}
}

// HandleFrame stores a copy of the completed frame. It runs on the listener
// goroutine.
func (c *CameraCache) HandleFrame(kind camera.FrameKind, seq uint16, frame []byte) {
	switch kind {
	case camera.KindRGB, camera.KindDepth:
		buf := make([]byte, len(frame))
		copy(buf, frame)
		c.mu.Lock()
		if kind == camera.KindRGB {
			c.rgb = buf
		} else {
			c.depth = buf
		}
		c.frames++
		c.mu.Unlock()
	case camera.KindInfo:
		info, err := camera.ParseInfo(frame)
		if err != nil {
			log.Printf("Ignoring bad camera info frame %d: %v", seq, err)
			return
		}
		c.mu.Lock()
		c.info = &info
		c.mu.Unlock()
	}
}

// Snapshot returns the latest frames of each kind. Fields are nil for kinds
// that have not arrived yet.
func (c *CameraCache) Snapshot() CameraSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CameraSnapshot{RGB: c.rgb, Depth: c.depth, Info: c.info}
}

// Frames returns the number of image frames received.
func (c *CameraCache) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}
