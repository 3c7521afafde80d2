package spatial

import (
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// InverseLerp returns where v lies between a and b, clamped to [0,1].
// When a == b the result is 1 so callers snap to the later sample.
func InverseLerp(a, b, v float64) float64 {
	if a == b {
		return 1
	}
	return mgl64.Clamp((v-a)/(b-a), 0, 1)
}

// Lerp linearly interpolates between two positions.
func Lerp(a, b core.Vec3, t float64) core.Vec3 {
	return core.Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Slerp spherically interpolates along the shortest arc between two rotations.
func Slerp(a, b core.Quat, t float64) core.Quat {
	qa, qb := toQuat(a), toQuat(b)
	if qa.Dot(qb) < 0 {
		qb = qb.Scale(-1)
	}
	switch {
	case t <= 0:
		return fromQuat(qa)
	case t >= 1:
		return fromQuat(qb)
	}
	return fromQuat(mgl64.QuatSlerp(qa, qb, t).Normalize())
}

// LerpPose interpolates position linearly and rotation spherically.
func LerpPose(a, b core.Pose, t float64) core.Pose {
	return core.Pose{
		Position: Lerp(a.Position, b.Position, t),
		Rotation: Slerp(a.Rotation, b.Rotation, t),
	}
}
