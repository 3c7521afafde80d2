package spatial

import (
	"sync"

	"github.com/OCAP2/mocap/pkg/core"
)

// Anchor is a detected real-world reference frame. It is owned by the tracker;
// consumers only read its pose and must tolerate it becoming unavailable.
type Anchor interface {
	// CurrentPose returns the anchor's world pose and whether it is currently tracked.
	CurrentPose() (core.Pose, bool)
}

// AnchorFunc adapts a function to the Anchor interface.
type AnchorFunc func() (core.Pose, bool)

// CurrentPose calls f.
func (f AnchorFunc) CurrentPose() (core.Pose, bool) {
	return f()
}

// Fixed returns an anchor that is always tracked at the given pose.
func Fixed(pose core.Pose) Anchor {
	return AnchorFunc(func() (core.Pose, bool) { return pose, true })
}

// TrackedAnchor is an Anchor updated by a tracker callback, possibly from another goroutine.
type TrackedAnchor struct {
	mu       sync.RWMutex
	pose     core.Pose
	detected bool
}

// NewTrackedAnchor creates an anchor that has not been detected yet.
func NewTrackedAnchor() *TrackedAnchor {
	return &TrackedAnchor{pose: core.IdentityPose()}
}

// Update records a fresh detection.
func (a *TrackedAnchor) Update(pose core.Pose) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pose = pose
	a.detected = true
}

// Lose marks tracking as lost. The last pose is kept but reported as unavailable.
func (a *TrackedAnchor) Lose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detected = false
}

// CurrentPose implements Anchor.
func (a *TrackedAnchor) CurrentPose() (core.Pose, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pose, a.detected
}
