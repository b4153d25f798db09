package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// PosQuat is a spatial pose: translation in meters plus a unit rotation
// quaternion. It is the storage form for end-effector and camera poses.
type PosQuat struct {
	Pos [3]float64
	Rot quat.Number
}

// Tolerances for accepting a 4x4 homogeneous matrix as a rigid transform.
const (
	detTolerance     = 0.01
	lastRowTolerance = 1e-6
)

// IsRigidTransform reports whether T, in row-major order, is a valid rigid
// transform: rotation determinant close to 1 and bottom row equal to
// [0 0 0 1].
func IsRigidTransform(T [16]float64) bool {
	det := T[0]*(T[5]*T[10]-T[6]*T[9]) -
		T[1]*(T[4]*T[10]-T[6]*T[8]) +
		T[2]*(T[4]*T[9]-T[5]*T[8])
	if math.Abs(det-1.0) > detTolerance {
		return false
	}
	if math.Abs(T[12]) > lastRowTolerance ||
		math.Abs(T[13]) > lastRowTolerance ||
		math.Abs(T[14]) > lastRowTolerance ||
		math.Abs(T[15]-1.0) > lastRowTolerance {
		return false
	}
	return true
}

// PosQuatFromMatrix converts a row-major 4x4 homogeneous transform into a
// translation plus unit quaternion. It rejects matrices that are not rigid
// transforms.
func PosQuatFromMatrix(T [16]float64) (PosQuat, error) {
	if !IsRigidTransform(T) {
		return PosQuat{}, fmt.Errorf("matrix is not a rigid transform")
	}
	pq := PosQuat{Pos: [3]float64{T[3], T[7], T[11]}}

	// Shepperd's method: branch on the largest of trace and diagonal
	// entries so the divisor stays well away from zero.
	trace := T[0] + T[5] + T[10]
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		pq.Rot = quat.Number{
			Real: s / 4,
			Imag: (T[9] - T[6]) / s,
			Jmag: (T[2] - T[8]) / s,
			Kmag: (T[4] - T[1]) / s,
		}
	case T[0] > T[5] && T[0] > T[10]:
		s := 2 * math.Sqrt(1+T[0]-T[5]-T[10])
		pq.Rot = quat.Number{
			Real: (T[9] - T[6]) / s,
			Imag: s / 4,
			Jmag: (T[1] + T[4]) / s,
			Kmag: (T[2] + T[8]) / s,
		}
	case T[5] > T[10]:
		s := 2 * math.Sqrt(1+T[5]-T[0]-T[10])
		pq.Rot = quat.Number{
			Real: (T[2] - T[8]) / s,
			Imag: (T[1] + T[4]) / s,
			Jmag: s / 4,
			Kmag: (T[6] + T[9]) / s,
		}
	default:
		s := 2 * math.Sqrt(1+T[10]-T[0]-T[5])
		pq.Rot = quat.Number{
			Real: (T[4] - T[1]) / s,
			Imag: (T[2] + T[8]) / s,
			Jmag: (T[6] + T[9]) / s,
			Kmag: s / 4,
		}
	}
	pq.Rot = normalize(pq.Rot)
	return pq, nil
}

// Matrix expands the pose back into a row-major 4x4 homogeneous transform.
func (pq PosQuat) Matrix() [16]float64 {
	q := normalize(pq.Rot)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [16]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), pq.Pos[0],
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), pq.Pos[1],
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), pq.Pos[2],
		0, 0, 0, 1,
	}
}

// Vector7 flattens the pose into [x y z qw qx qy qz], the layout used by the
// trial store and the recorder's frame records.
func (pq PosQuat) Vector7() [7]float64 {
	q := normalize(pq.Rot)
	return [7]float64{
		pq.Pos[0], pq.Pos[1], pq.Pos[2],
		q.Real, q.Imag, q.Jmag, q.Kmag,
	}
}

// PosQuatFromVector7 is the inverse of Vector7.
func PosQuatFromVector7(v [7]float64) PosQuat {
	return PosQuat{
		Pos: [3]float64{v[0], v[1], v[2]},
		Rot: normalize(quat.Number{Real: v[3], Imag: v[4], Jmag: v[5], Kmag: v[6]}),
	}
}

// Mul composes two poses: the result applies rhs in pq's frame. Composing a
// link chain left to right walks from the base outward.
func (pq PosQuat) Mul(rhs PosQuat) PosQuat {
	r := normalize(pq.Rot)
	v := quat.Number{Imag: rhs.Pos[0], Jmag: rhs.Pos[1], Kmag: rhs.Pos[2]}
	p := quat.Mul(quat.Mul(r, v), quat.Conj(r))
	return PosQuat{
		Pos: [3]float64{pq.Pos[0] + p.Imag, pq.Pos[1] + p.Jmag, pq.Pos[2] + p.Kmag},
		Rot: normalize(quat.Mul(r, rhs.Rot)),
	}
}

// RotationX returns the quaternion for a rotation of theta radians about the
// X axis.
func RotationX(theta float64) quat.Number {
	half := theta / 2
	return quat.Number{Real: math.Cos(half), Imag: math.Sin(half)}
}

// RotationY returns the quaternion for a rotation of theta radians about the
// Y axis.
func RotationY(theta float64) quat.Number {
	half := theta / 2
	return quat.Number{Real: math.Cos(half), Jmag: math.Sin(half)}
}

// RotationZ returns the quaternion for a rotation of theta radians about the
// world Z axis, the rotation a planar base pose induces on mounted frames.
func RotationZ(theta float64) quat.Number {
	half := theta / 2
	return quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}
