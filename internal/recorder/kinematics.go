package recorder

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"

	"github.com/strandbotics/homebase/internal/geom"
)

// Link offsets of the strand arm, meters in the base frame. X forward,
// Y left, Z up; the arm telescopes to the robot's right.
const (
	mastOffsetX  = -0.10
	mastOffsetZ  = 0.17
	armRetracted = 0.12
	gripperReach = 0.21
)

// EEPoseFromJoints computes the gripper pose in the base frame from the
// joint vector [lift, extension, wrist_yaw, wrist_pitch, wrist_roll,
// gripper]. The lift carriage rides the mast, the arm telescopes along -Y,
// the wrist chains yaw about Z, pitch about Y and roll about X, and the
// gripper extends along the wrist -Y axis.
func EEPoseFromJoints(q []float64) (geom.PosQuat, error) {
	if len(q) < 5 {
		return geom.PosQuat{}, fmt.Errorf("joint vector has %d values, want at least 5", len(q))
	}
	lift, ext, yaw, pitch, roll := q[0], q[1], q[2], q[3], q[4]

	wrist := geom.PosQuat{
		Pos: [3]float64{mastOffsetX, -(armRetracted + ext), mastOffsetZ + lift},
		Rot: quat.Mul(quat.Mul(geom.RotationZ(yaw), geom.RotationY(pitch)), geom.RotationX(roll)),
	}
	gripper := geom.PosQuat{
		Pos: [3]float64{0, -gripperReach, 0},
		Rot: quat.Number{Real: 1},
	}
	return wrist.Mul(gripper), nil
}
