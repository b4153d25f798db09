// Package control implements the goto controller: velocity commands that
// gravitate a differential drive base toward a goal pose, with no planning.
package control

import (
	"math"

	"github.com/strandbotics/homebase/internal/geom"
)

// DiffDrive computes velocity commands for a differential drive base from an
// error pose. Both axes use a trapezoidal velocity profile; forward speed is
// additionally gated on heading alignment so the base turns toward the goal
// before driving.
type DiffDrive struct {
	VMax   float64 // maximum linear velocity, m/s
	WMax   float64 // maximum angular velocity, rad/s
	AccLin float64 // linear acceleration of the velocity profile, m/s^2
	AccAng float64 // angular acceleration of the velocity profile, rad/s^2

	LinErrorTol float64 // position tolerance, m
	AngErrorTol float64 // heading tolerance, rad
}

// feedbackVelocity returns the trapezoidal-profile velocity for closing err:
// the speed a body decelerating at acc would have at distance |err| from a
// stop, capped at vmax and signed toward the goal.
func feedbackVelocity(err, acc, vmax float64) float64 {
	v := math.Min(math.Sqrt(2*acc*math.Abs(err)), vmax)
	if err < 0 {
		return -v
	}
	return v
}

// headingGate scales forward speed by alignment with the goal direction: full
// speed when pointed at the goal, zero at 45 degrees and beyond so the base
// turns in place before driving.
func headingGate(headingErr float64) float64 {
	if math.Abs(headingErr) > math.Pi/2 {
		return 0
	}
	k := math.Cos(2 * headingErr)
	if k < 0 {
		return 0
	}
	return k
}

// Command returns the velocity command for an error pose expressed in the
// base frame. Outside the position tolerance the base drives toward the goal
// point; once within it, it rotates to the goal heading. Inside both
// tolerances the command is zero.
func (d DiffDrive) Command(err geom.Pose2) (v, w float64) {
	linErr := err.Norm()

	switch {
	case linErr > d.LinErrorTol:
		headingErr := math.Atan2(err.Y, err.X)
		v = headingGate(headingErr) * feedbackVelocity(linErr, d.AccLin, d.VMax)
		w = feedbackVelocity(headingErr, d.AccAng, d.WMax)
	case math.Abs(err.Theta) > d.AngErrorTol:
		w = feedbackVelocity(err.Theta, d.AccAng, d.WMax)
	}
	return v, w
}

// Arrived reports whether the error pose is within both tolerances.
func (d DiffDrive) Arrived(err geom.Pose2) bool {
	return err.Norm() <= d.LinErrorTol && math.Abs(err.Theta) <= d.AngErrorTol
}
