package control

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/strandbotics/homebase/internal/baselink"
	"github.com/strandbotics/homebase/internal/config"
	"github.com/strandbotics/homebase/internal/geom"
	"github.com/strandbotics/homebase/internal/timeutil"
)

// Controller drives the base toward a goal pose using odometry feedback. The
// goal can be replaced at any instant; each control tick uses the latest one.
type Controller struct {
	mux     baselink.MuxInterface
	tracker *baselink.StateTracker
	drive   DiffDrive
	hz      float64
	clock   timeutil.Clock
	logger  *log.Logger

	mu       sync.Mutex
	goal     *geom.Pose2
	active   bool
	trackYaw bool
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ControllerConfig contains configuration for the goto Controller.
type ControllerConfig struct {
	// Mux is the command channel to the base controller
	Mux baselink.MuxInterface
	// Tracker supplies the latest odometry frame
	Tracker *baselink.StateTracker
	// Robot supplies tuning values; nil uses defaults
	Robot *config.RobotConfig
	// Clock drives the control ticks; nil uses the system clock
	Clock timeutil.Clock
	// Logger is optional; if nil, uses log.Default()
	Logger *log.Logger
}

// NewController creates a goto controller tuned from the robot configuration.
func NewController(cfg ControllerConfig) *Controller {
	robot := cfg.Robot
	if robot == nil {
		robot = config.DefaultRobotConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		mux:     cfg.Mux,
		tracker: cfg.Tracker,
		drive: DiffDrive{
			VMax:        robot.GetVMax(),
			WMax:        robot.GetWMax(),
			AccLin:      robot.GetAccLin(),
			AccAng:      robot.GetAccAng(),
			LinErrorTol: robot.GetLinErrorTol(),
			AngErrorTol: robot.GetAngErrorTol(),
		},
		hz:       robot.GetControlHz(),
		clock:    clock,
		logger:   logger,
		trackYaw: robot.GetTrackYaw(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetGoal replaces the goal pose. The controller picks it up on the next tick.
func (c *Controller) SetGoal(goal geom.Pose2) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := goal
	c.goal = &g
}

// Goal returns the current goal pose if one is set.
func (c *Controller) Goal() (geom.Pose2, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.goal == nil {
		return geom.Pose2{}, false
	}
	return *c.goal, true
}

// Enable turns the drive motors on and starts commanding velocity toward the
// goal on subsequent ticks.
func (c *Controller) Enable() error {
	if err := c.mux.SetMotorEnable(true); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	c.logger.Printf("goto controller is now RUNNING")
	return nil
}

// Disable stops commanding the base, halts it and turns the motors off.
func (c *Controller) Disable() error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	if err := c.mux.SendVelocity(0, 0); err != nil {
		return err
	}
	if err := c.mux.SetMotorEnable(false); err != nil {
		return err
	}
	c.logger.Printf("goto controller is now STOPPED")
	return nil
}

// Active reports whether the controller is currently commanding the base.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetYawTracking toggles whether the goal heading is tracked once the base
// reaches the goal position.
func (c *Controller) SetYawTracking(on bool) {
	c.mu.Lock()
	c.trackYaw = on
	c.mu.Unlock()
	status := "OFF"
	if on {
		status = "ON"
	}
	c.logger.Printf("yaw tracking is now %s", status)
}

// YawTracking reports whether the goal heading is tracked.
func (c *Controller) YawTracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackYaw
}

// errorPose returns the goal expressed in the base frame, with the heading
// error zeroed when yaw tracking is off.
func errorPose(goal, current geom.Pose2, trackYaw bool) geom.Pose2 {
	err := geom.GlobalToBase(goal, current)
	if !trackYaw {
		err.Theta = 0
	}
	return err
}

// Arrived reports whether the base is within tolerance of the goal. It is
// false while no goal is set or no odometry has arrived.
func (c *Controller) Arrived() bool {
	c.mu.Lock()
	goal, trackYaw := c.goal, c.trackYaw
	c.mu.Unlock()
	if goal == nil {
		return false
	}
	frame := c.tracker.Latest()
	if frame == nil {
		return false
	}
	return c.drive.Arrived(errorPose(*goal, frame.Pose(), trackYaw))
}

// Run starts the control loop. It blocks until the context is cancelled or
// Stop() is called. Returns nil on clean shutdown.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil // already running
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	defer func() {
		close(c.doneCh)
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if c.hz <= 0 {
		c.logger.Printf("goto controller: control rate is zero or negative, not starting")
		return nil
	}

	ticker := c.clock.NewTicker(time.Duration(float64(time.Second) / c.hz))
	defer ticker.Stop()

	c.logger.Printf("goto controller started: rate=%.0f Hz", c.hz)

	for {
		select {
		case <-ctx.Done():
			c.halt("context cancellation")
			return nil
		case <-c.stopCh:
			c.halt("Stop() call")
			return nil
		case <-ticker.C():
			c.step()
		}
	}
}

// Stop requests the control loop to stop. It is safe to call multiple times.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	select {
	case <-c.stopCh:
		// already closed
	default:
		close(c.stopCh)
	}
	c.mu.Unlock()

	// Wait for completion
	<-c.doneCh
}

// IsRunning reports whether the control loop is currently running.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// step performs one control tick.
func (c *Controller) step() {
	c.mu.Lock()
	goal, active, trackYaw := c.goal, c.active, c.trackYaw
	c.mu.Unlock()

	if !active || goal == nil {
		return
	}
	frame := c.tracker.Latest()
	if frame == nil {
		return
	}

	v, w := c.drive.Command(errorPose(*goal, frame.Pose(), trackYaw))
	if err := c.mux.SendVelocity(v, w); err != nil {
		c.logger.Printf("goto controller: error sending velocity: %v", err)
	}
}

// halt stops the base on shutdown if the controller was commanding it.
func (c *Controller) halt(reason string) {
	c.logger.Printf("goto controller stopping due to %s", reason)
	if c.Active() {
		if err := c.mux.SendVelocity(0, 0); err != nil {
			c.logger.Printf("goto controller: error halting base: %v", err)
		}
	}
}
