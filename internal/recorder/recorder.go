package recorder

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/strandbotics/homebase/internal/baselink"
	"github.com/strandbotics/homebase/internal/config"
	"github.com/strandbotics/homebase/internal/trialstore"
)

// Recorder samples the robot state at a fixed rate while a trial is open and
// persists each sample as a frame row plus RGB/depth stills on disk. Image
// paths in frame rows are relative to the recorder's root directory.
type Recorder struct {
	store   *trialstore.Store
	tracker *baselink.StateTracker
	camera  *CameraCache
	dir     string
	hz      float64
	logger  *log.Logger

	mu         sync.Mutex
	trial      *trialstore.Trial
	frameIndex int64
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// RecorderConfig wires the sampler to its sources and the store.
type RecorderConfig struct {
	// Store receives trial and frame rows
	Store *trialstore.Store
	// Tracker supplies the latest telemetry frame
	Tracker *baselink.StateTracker
	// Camera supplies the latest image frames; nil records without images
	Camera *CameraCache
	// Dir is the root directory for image files
	Dir string
	// Robot supplies the sampling rate; nil uses defaults
	Robot *config.RobotConfig
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// NewRecorder creates a recorder tuned from the robot configuration.
func NewRecorder(cfg RecorderConfig) *Recorder {
	robot := cfg.Robot
	if robot == nil {
		robot = config.DefaultRobotConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "trials"
	}
	return &Recorder{
		store:   cfg.Store,
		tracker: cfg.Tracker,
		camera:  cfg.Camera,
		dir:     dir,
		hz:      robot.GetRecordHz(),
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Dir returns the root directory image paths are relative to.
func (r *Recorder) Dir() string {
	return r.dir
}

// Start opens a new trial. The sampling loop captures frames on subsequent
// ticks until Finish is called.
func (r *Recorder) Start(task, operator, notes string) (trialstore.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trial != nil {
		return trialstore.Trial{}, fmt.Errorf("trial %s is still recording", r.trial.ID)
	}

	trial, err := r.store.CreateTrial(task, operator, notes, time.Now())
	if err != nil {
		return trialstore.Trial{}, err
	}
	if err := os.MkdirAll(r.trialDir(trial.ID), 0o755); err != nil {
		if delErr := r.store.DeleteTrial(trial.ID); delErr != nil {
			r.logger.Printf("recorder: error removing unstartable trial: %v", delErr)
		}
		return trialstore.Trial{}, fmt.Errorf("failed to create trial directory: %w", err)
	}

	r.trial = &trial
	r.frameIndex = 0
	r.logger.Printf("Recording trial %s (task %q) at %.0f Hz", trial.ID, task, r.hz)
	return trial, nil
}

// Finish seals the open trial and returns it with the end timestamp set.
func (r *Recorder) Finish() (trialstore.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trial == nil {
		return trialstore.Trial{}, fmt.Errorf("no trial is recording")
	}

	trial := *r.trial
	endedAt := time.Now().UTC()
	if err := r.store.EndTrial(trial.ID, endedAt); err != nil {
		return trialstore.Trial{}, err
	}
	trial.EndedAt = &endedAt

	r.logger.Printf("... done recording trial %s: %d frames", trial.ID, r.frameIndex)
	r.trial = nil
	return trial, nil
}

// Recording returns the open trial id, if any.
func (r *Recorder) Recording() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trial == nil {
		return "", false
	}
	return r.trial.ID, true
}

// SaveFrame captures one sample immediately. The sampling loop calls it every
// tick; operators call it through the API to mark keyframes.
func (r *Recorder) SaveFrame(keyframe bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveFrameLocked(keyframe)
}

func (r *Recorder) saveFrameLocked(keyframe bool) error {
	if r.trial == nil {
		return fmt.Errorf("no trial is recording")
	}
	state := r.tracker.Latest()
	if state == nil {
		return fmt.Errorf("no base telemetry yet")
	}

	frame := trialstore.Frame{
		TrialID:  r.trial.ID,
		Index:    r.frameIndex,
		T:        state.T,
		BasePose: state.Pose(),
		Q:        append([]float64(nil), state.Q...),
		DQ:       append([]float64(nil), state.DQ...),
		Gripper:  state.Gripper,
		Keyframe: keyframe,
	}
	if ee, err := EEPoseFromJoints(state.Q); err == nil {
		frame.EEPose = ee.Vector7()
	}

	if r.camera != nil {
		snap := r.camera.Snapshot()
		if snap.Info != nil {
			frame.CameraPose = snap.Info.CameraPose().Vector7()
		}
		if len(snap.RGB) > 0 {
			name := fmt.Sprintf("rgb_%06d.png", r.frameIndex)
			if err := r.writeImage(name, snap.RGB); err != nil {
				return err
			}
			frame.RGBPath = filepath.Join(r.trial.ID, name)
		}
		if len(snap.Depth) > 0 {
			name := fmt.Sprintf("depth_%06d.png", r.frameIndex)
			if err := r.writeImage(name, snap.Depth); err != nil {
				return err
			}
			frame.DepthPath = filepath.Join(r.trial.ID, name)
		}
	}

	if err := r.store.RecordFrame(frame); err != nil {
		return err
	}
	r.frameIndex++
	return nil
}

func (r *Recorder) trialDir(id string) string {
	return filepath.Join(r.dir, id)
}

func (r *Recorder) writeImage(name string, data []byte) error {
	path := filepath.Join(r.trialDir(r.trial.ID), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Run starts the sampling loop. While a trial is open it captures one frame
// per tick; otherwise it idles. Blocks until the context is cancelled or
// Stop() is called. Returns nil on clean shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil // already running
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		close(r.doneCh)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if r.hz <= 0 {
		r.logger.Printf("recorder: sample rate is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.hz))
	defer ticker.Stop()

	r.logger.Printf("recorder started: rate=%.0f Hz", r.hz)

	for {
		select {
		case <-ctx.Done():
			r.sealOpenTrial("context cancellation")
			return nil
		case <-r.stopCh:
			r.sealOpenTrial("Stop() call")
			return nil
		case <-ticker.C:
			r.tick()
		}
	}
}

// Stop requests the sampling loop to stop. It is safe to call multiple times.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	select {
	case <-r.stopCh:
		// already closed
	default:
		close(r.stopCh)
	}
	r.mu.Unlock()

	// Wait for completion
	<-r.doneCh
}

// IsRunning reports whether the sampling loop is currently running.
func (r *Recorder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// tick captures one frame if a trial is open.
func (r *Recorder) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trial == nil {
		return
	}
	if err := r.saveFrameLocked(false); err != nil {
		r.logger.Printf("recorder: dropping frame: %v", err)
	}
}

// sealOpenTrial closes a trial left open at shutdown so it is not stranded
// without an end timestamp.
func (r *Recorder) sealOpenTrial(reason string) {
	r.logger.Printf("recorder stopping due to %s", reason)
	r.mu.Lock()
	open := r.trial != nil
	r.mu.Unlock()
	if open {
		if _, err := r.Finish(); err != nil {
			r.logger.Printf("recorder: error sealing open trial: %v", err)
		}
	}
}
