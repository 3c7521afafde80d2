// pkg/core/types.go
package core

// Vec3 represents a 3D position or direction in meters
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"` // up
	Z float64 `json:"z"`
}

// Quat represents a rotation as a unit quaternion
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat returns the rotation that leaves vectors unchanged.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// IsZero reports whether q is the zero quaternion, which is not a valid rotation.
func (q Quat) IsZero() bool {
	return q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 0
}

// Pose is a position and orientation in some reference frame
type Pose struct {
	Position Vec3 `json:"position"`
	Rotation Quat `json:"rotation"`
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: IdentityQuat()}
}

// PoseFrame is what the body tracker reports for a single update.
// Root and joint transforms are in world space.
type PoseFrame struct {
	Root   Pose
	Joints []JointSample // nil for root-only trackers
	Valid  bool
}
