package types

// Quaternion is an orientation in w, x, y, z order.
type Quaternion struct {
	W, X, Y, Z float64
}

// Vec3 is a position or translation in meters.
type Vec3 struct {
	X, Y, Z float64
}

// Pose is a device pose as reported by the tracking loop.
type Pose struct {
	Orientation Quaternion
	Position    Vec3
}

// Mat3 is a row-major 3x3 rotation matrix.
type Mat3 [3][3]float64

// RotationMatrix converts the orientation quaternion to a rotation matrix.
func (q Quaternion) RotationMatrix() Mat3 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	return Mat3{
		{1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy)},
		{2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx)},
		{2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy)},
	}
}

// Mul returns m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return out
}

// IsIdentity reports whether m is the identity rotation.
func (m Mat3) IsIdentity() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if m[i][j] != want {
				return false
			}
		}
	}
	return true
}

// Identity3 returns the identity rotation matrix.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}
