package control

import (
	"context"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/strandbotics/homebase/internal/baselink"
	"github.com/strandbotics/homebase/internal/config"
	"github.com/strandbotics/homebase/internal/geom"
	"github.com/strandbotics/homebase/internal/timeutil"
)

// recordingMux implements baselink.MuxInterface and records the velocity and
// enable commands the controller sends.
type recordingMux struct {
	mu         sync.Mutex
	velocities [][2]float64
	enables    []bool
}

func (r *recordingMux) Subscribe() (string, chan string)     { return "test", make(chan string) }
func (r *recordingMux) Unsubscribe(string)                   {}
func (r *recordingMux) SendCommand(string) error             { return nil }
func (r *recordingMux) Monitor(ctx context.Context) error    { <-ctx.Done(); return ctx.Err() }
func (r *recordingMux) Close() error                         { return nil }
func (r *recordingMux) Initialize() error                    { return nil }
func (r *recordingMux) SetTelemetryRate(int) error           { return nil }
func (r *recordingMux) ZeroOdometry() error                  { return nil }
func (r *recordingMux) RequestStatus() error                 { return nil }
func (r *recordingMux) AttachAdminRoutes(mux *http.ServeMux) {}

func (r *recordingMux) SendVelocity(v, w float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.velocities = append(r.velocities, [2]float64{v, w})
	return nil
}

func (r *recordingMux) SetMotorEnable(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enables = append(r.enables, enabled)
	return nil
}

func (r *recordingMux) velocityCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.velocities)
}

func (r *recordingMux) lastVelocity() (float64, float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.velocities) == 0 {
		return 0, 0, false
	}
	last := r.velocities[len(r.velocities)-1]
	return last[0], last[1], true
}

var _ baselink.MuxInterface = (*recordingMux)(nil)

// updateTracker stores a pose in the tracker as if a telemetry frame arrived.
func updateTracker(tracker *baselink.StateTracker, t float64, pose geom.Pose2) {
	tracker.Update(&baselink.StateFrame{
		T:    t,
		Base: baselink.BaseState{X: pose.X, Y: pose.Y, Theta: pose.Theta},
	})
}

func newTestController(mux baselink.MuxInterface, tracker *baselink.StateTracker) *Controller {
	return NewController(ControllerConfig{
		Mux:     mux,
		Tracker: tracker,
		Robot:   config.DefaultRobotConfig(),
	})
}

func TestController_StepSendsVelocity(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	updateTracker(tracker, 1, geom.Pose2{})
	ctrl.SetGoal(geom.Pose2{X: 1})
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	ctrl.step()

	v, w, ok := mux.lastVelocity()
	if !ok {
		t.Fatal("Expected a velocity command after step")
	}
	if v <= 0 {
		t.Errorf("Expected forward velocity toward goal, got v=%v", v)
	}
	if math.Abs(w) > 1e-9 {
		t.Errorf("Expected no turn for goal straight ahead, got w=%v", w)
	}
}

func TestController_StepWithoutEnable(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	updateTracker(tracker, 1, geom.Pose2{})
	ctrl.SetGoal(geom.Pose2{X: 1})

	ctrl.step()

	if got := mux.velocityCount(); got != 0 {
		t.Errorf("Expected no velocity commands while inactive, got %d", got)
	}
}

func TestController_StepWithoutGoal(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	updateTracker(tracker, 1, geom.Pose2{})
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	ctrl.step()

	if got := mux.velocityCount(); got != 0 {
		t.Errorf("Expected no velocity commands without a goal, got %d", got)
	}
}

func TestController_StepWithoutOdometry(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	ctrl.SetGoal(geom.Pose2{X: 1})
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	ctrl.step()

	if got := mux.velocityCount(); got != 0 {
		t.Errorf("Expected no velocity commands before first odometry frame, got %d", got)
	}
}

func TestController_EnableDisable(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	if ctrl.Active() {
		t.Error("Controller should start inactive")
	}

	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if !ctrl.Active() {
		t.Error("Expected controller active after Enable")
	}

	if err := ctrl.Disable(); err != nil {
		t.Fatalf("Disable returned error: %v", err)
	}
	if ctrl.Active() {
		t.Error("Expected controller inactive after Disable")
	}

	// Disable must halt the base and drop motor power.
	v, w, ok := mux.lastVelocity()
	if !ok || v != 0 || w != 0 {
		t.Errorf("Expected zero velocity on Disable, got (%v, %v, %v)", v, w, ok)
	}
	mux.mu.Lock()
	defer mux.mu.Unlock()
	if len(mux.enables) != 2 || mux.enables[0] != true || mux.enables[1] != false {
		t.Errorf("Expected enables [true false], got %v", mux.enables)
	}
}

func TestController_GoalReplaceable(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	if _, ok := ctrl.Goal(); ok {
		t.Error("Expected no goal initially")
	}

	ctrl.SetGoal(geom.Pose2{X: 1})
	ctrl.SetGoal(geom.Pose2{X: -2, Theta: 1})

	goal, ok := ctrl.Goal()
	if !ok {
		t.Fatal("Expected a goal after SetGoal")
	}
	if goal.X != -2 || goal.Theta != 1 {
		t.Errorf("Goal = %+v, want the most recent goal", goal)
	}
}

func TestController_YawTrackingToggle(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	if !ctrl.YawTracking() {
		t.Error("Yaw tracking should default to on")
	}

	ctrl.SetYawTracking(false)
	if ctrl.YawTracking() {
		t.Error("Expected yaw tracking off after toggle")
	}

	// With tracking off, a heading-only error produces no command motion.
	updateTracker(tracker, 1, geom.Pose2{Theta: 1})
	ctrl.SetGoal(geom.Pose2{})
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	ctrl.step()

	v, w, ok := mux.lastVelocity()
	if !ok {
		t.Fatal("Expected a velocity command after step")
	}
	if v != 0 || w != 0 {
		t.Errorf("Expected zero command with yaw tracking off at goal position, got (%v, %v)", v, w)
	}
}

func TestController_Arrived(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	if ctrl.Arrived() {
		t.Error("Arrived should be false without a goal")
	}

	ctrl.SetGoal(geom.Pose2{X: 1})
	if ctrl.Arrived() {
		t.Error("Arrived should be false without odometry")
	}

	updateTracker(tracker, 1, geom.Pose2{})
	if ctrl.Arrived() {
		t.Error("Arrived should be false one meter from the goal")
	}

	updateTracker(tracker, 2, geom.Pose2{X: 1})
	if !ctrl.Arrived() {
		t.Error("Expected Arrived at the goal pose")
	}
}

func TestController_ConvergesAgainstSimulatedBase(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	goal := geom.Pose2{X: 1, Y: 0.5, Theta: math.Pi / 2}
	ctrl.SetGoal(goal)
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	const dt = 1.0 / 20
	pose := geom.Pose2{}
	updateTracker(tracker, 0, pose)

	arrived := false
	for i := 0; i < 20*60; i++ {
		ctrl.step()
		v, w, ok := mux.lastVelocity()
		if !ok {
			t.Fatal("Expected a velocity command")
		}
		pose = pose.Integrate(v, w, dt)
		updateTracker(tracker, float64(i+1)*dt, pose)
		if ctrl.Arrived() {
			arrived = true
			break
		}
	}

	if !arrived {
		t.Fatalf("Controller did not reach the goal, final pose %+v", pose)
	}
}

func TestController_RunStopsOnContextCancel(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	ctrl := NewController(ControllerConfig{
		Mux:     mux,
		Tracker: tracker,
		Robot:   config.DefaultRobotConfig(),
		Clock:   clock,
	})

	updateTracker(tracker, 1, geom.Pose2{})
	ctrl.SetGoal(geom.Pose2{X: 1})
	if err := ctrl.Enable(); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx)
	}()

	// Wait for the loop to come up, then drive control ticks through the
	// mock clock until a command goes out.
	deadline := time.Now().Add(time.Second)
	for !ctrl.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !ctrl.IsRunning() {
		t.Fatal("Controller loop did not start")
	}
	for mux.velocityCount() == 0 && time.Now().Before(deadline) {
		clock.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	if mux.velocityCount() == 0 {
		t.Error("Expected velocity commands from the driven loop")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}

	if ctrl.IsRunning() {
		t.Error("Expected controller loop stopped after Run returned")
	}

	// The shutdown path halts the base.
	v, w, ok := mux.lastVelocity()
	if !ok || v != 0 || w != 0 {
		t.Errorf("Expected final zero velocity on shutdown, got (%v, %v, %v)", v, w, ok)
	}
}

func TestController_Stop(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()
	ctrl := newTestController(mux, tracker)

	go ctrl.Run(context.Background())

	// Wait for the loop to come up.
	deadline := time.Now().Add(1 * time.Second)
	for !ctrl.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !ctrl.IsRunning() {
		t.Fatal("Controller loop did not start")
	}

	ctrl.Stop()
	if ctrl.IsRunning() {
		t.Error("Expected loop stopped after Stop")
	}

	// Stop is idempotent.
	ctrl.Stop()
}

func TestController_RunZeroRate(t *testing.T) {
	mux := &recordingMux{}
	tracker := baselink.NewStateTracker()

	hz := 0.0
	cfg := config.DefaultRobotConfig()
	cfg.ControlHz = &hz

	ctrl := NewController(ControllerConfig{Mux: mux, Tracker: tracker, Robot: cfg})

	// A zero rate must not spin; Run returns immediately.
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Run did not return for zero control rate")
	}
}
