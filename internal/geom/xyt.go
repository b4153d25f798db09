// Package geom provides the planar pose math shared by odometry, the goto
// controller and the demonstration recorder.
//
// Coordinate convention: X=forward, Y=left, theta counter-clockwise from +X,
// all in the world frame unless a function says otherwise.
package geom

import "math"

// Pose2 is a planar robot pose: position in meters, heading in radians.
type Pose2 struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// WrapAngle normalizes an angle to the half-open interval [-pi, pi).
func WrapAngle(theta float64) float64 {
	wrapped := math.Mod(theta+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// GlobalToBase expresses a world-frame pose in the frame of base. This is the
// controller's error pose: where the goal sits as seen from the robot.
func GlobalToBase(global, base Pose2) Pose2 {
	dx := global.X - base.X
	dy := global.Y - base.Y
	sin, cos := math.Sincos(base.Theta)
	return Pose2{
		X:     cos*dx + sin*dy,
		Y:     -sin*dx + cos*dy,
		Theta: WrapAngle(global.Theta - base.Theta),
	}
}

// BaseToGlobal is the inverse of GlobalToBase: a pose expressed relative to
// base mapped back into the world frame.
func BaseToGlobal(local, base Pose2) Pose2 {
	sin, cos := math.Sincos(base.Theta)
	return Pose2{
		X:     base.X + cos*local.X - sin*local.Y,
		Y:     base.Y + sin*local.X + cos*local.Y,
		Theta: WrapAngle(base.Theta + local.Theta),
	}
}

// Integrate advances the pose by a unicycle step: linear velocity v (m/s)
// along the heading and angular velocity w (rad/s) applied for dt seconds.
// Uses the exact arc solution; falls back to a straight step when the turn
// rate is negligible to avoid dividing by a near-zero w.
func (p Pose2) Integrate(v, w, dt float64) Pose2 {
	const wEpsilon = 1e-9
	if math.Abs(w) < wEpsilon {
		sin, cos := math.Sincos(p.Theta)
		return Pose2{
			X:     p.X + v*cos*dt,
			Y:     p.Y + v*sin*dt,
			Theta: p.Theta,
		}
	}
	radius := v / w
	thetaNext := p.Theta + w*dt
	return Pose2{
		X:     p.X + radius*(math.Sin(thetaNext)-math.Sin(p.Theta)),
		Y:     p.Y - radius*(math.Cos(thetaNext)-math.Cos(p.Theta)),
		Theta: WrapAngle(thetaNext),
	}
}

// Norm returns the planar distance of the pose position from the origin.
// Applied to an error pose this is the remaining distance to the goal.
func (p Pose2) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}
