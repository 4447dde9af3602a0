package orientation

import (
	"math"
)

// Pose is the viewpoint used for projection and closed-loop compensation.
// Positions are in world units, Yaw is in radians about the vertical axis.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// Source is anything that can provide poses over time.
// The mock source drives the simulated camera; a replay source could read
// a previous session log.
type Source interface {
	Next() (Pose, error)
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ViewpointFromTracking maps the stage position plus the marker offset seen
// by the camera into world coordinates. Stage Y runs along world X and stage X
// along world Z; the marker offset is subtracted on X and added on Y because
// the camera image is mirrored relative to the stage axes.
//
//	x   = (stageY + camY) * scale
//	z   = (stageX - camX) * scale
//	yaw = angleDeg in radians
func ViewpointFromTracking(stageX, stageY, camX, camY, angleDeg, height, scale float64) Pose {
	return Pose{
		X:   (stageY + camY) * scale,
		Y:   height,
		Z:   (stageX - camX) * scale,
		Yaw: DegToRad(angleDeg),
	}
}
