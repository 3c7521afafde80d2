// pkg/core/joint.go
package core

import "fmt"

// JointKind identifies a joint in the humanoid skeleton.
// Values are persisted; never renumber existing kinds.
type JointKind uint16

const (
	JointHips JointKind = iota
	JointSpine
	JointChest
	JointUpperChest
	JointNeck
	JointHead
	JointLeftShoulder
	JointLeftUpperArm
	JointLeftLowerArm
	JointLeftHand
	JointRightShoulder
	JointRightUpperArm
	JointRightLowerArm
	JointRightHand
	JointLeftUpperLeg
	JointLeftLowerLeg
	JointLeftFoot
	JointLeftToes
	JointRightUpperLeg
	JointRightLowerLeg
	JointRightFoot
	JointRightToes

	// JointKindCount is the number of joints in the taxonomy
	JointKindCount
)

var jointNames = [JointKindCount]string{
	"hips", "spine", "chest", "upper_chest", "neck", "head",
	"left_shoulder", "left_upper_arm", "left_lower_arm", "left_hand",
	"right_shoulder", "right_upper_arm", "right_lower_arm", "right_hand",
	"left_upper_leg", "left_lower_leg", "left_foot", "left_toes",
	"right_upper_leg", "right_lower_leg", "right_foot", "right_toes",
}

// Valid reports whether k is part of the taxonomy.
func (k JointKind) Valid() bool {
	return k < JointKindCount
}

func (k JointKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("joint(%d)", uint16(k))
	}
	return jointNames[k]
}

// JointSample is a single joint transform.
// In a PoseSample it is anchor-relative; in a PoseFrame it is world space.
// An untracked joint keeps its last-known transform.
type JointSample struct {
	Joint    JointKind `json:"joint"`
	Position Vec3      `json:"position"`
	Rotation Quat      `json:"rotation"`
	Tracked  bool      `json:"tracked"`
}
