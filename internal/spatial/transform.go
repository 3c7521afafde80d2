// Package spatial converts poses between world space and an anchor's local frame
// and interpolates between poses.
package spatial

import (
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

func toVec(v core.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func fromVec(v mgl64.Vec3) core.Vec3 {
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// toQuat converts to mgl64 and normalizes. The zero quaternion maps to identity.
func toQuat(q core.Quat) mgl64.Quat {
	if q.IsZero() {
		return mgl64.QuatIdent()
	}
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}.Normalize()
}

func fromQuat(q mgl64.Quat) core.Quat {
	return core.Quat{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

// TransformPoint maps a point from the anchor's local frame into world space.
func TransformPoint(anchor core.Pose, local core.Vec3) core.Vec3 {
	rot := toQuat(anchor.Rotation)
	return fromVec(toVec(anchor.Position).Add(rot.Rotate(toVec(local))))
}

// InverseTransformPoint maps a world-space point into the anchor's local frame.
func InverseTransformPoint(anchor core.Pose, world core.Vec3) core.Vec3 {
	inv := toQuat(anchor.Rotation).Inverse()
	return fromVec(inv.Rotate(toVec(world).Sub(toVec(anchor.Position))))
}

// TransformRotation maps a local rotation into world space (anchor.Rotation * local).
func TransformRotation(anchor core.Pose, local core.Quat) core.Quat {
	return fromQuat(toQuat(anchor.Rotation).Mul(toQuat(local)).Normalize())
}

// InverseTransformRotation maps a world rotation into the anchor's local frame.
func InverseTransformRotation(anchor core.Pose, world core.Quat) core.Quat {
	return fromQuat(toQuat(anchor.Rotation).Inverse().Mul(toQuat(world)).Normalize())
}

// ToLocal expresses a world pose relative to the anchor.
func ToLocal(anchor, world core.Pose) core.Pose {
	return core.Pose{
		Position: InverseTransformPoint(anchor, world.Position),
		Rotation: InverseTransformRotation(anchor, world.Rotation),
	}
}

// ToWorld places an anchor-relative pose in world space.
func ToWorld(anchor, local core.Pose) core.Pose {
	return core.Pose{
		Position: TransformPoint(anchor, local.Position),
		Rotation: TransformRotation(anchor, local.Rotation),
	}
}

// YawRotation returns a rotation of rad radians about the vertical axis.
func YawRotation(rad float64) core.Quat {
	return fromQuat(mgl64.QuatRotate(rad, mgl64.Vec3{0, 1, 0}))
}
