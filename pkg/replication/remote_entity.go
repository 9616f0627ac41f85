package replication

import (
	"math"

	"github.com/sessamekesh/splatnet/pkg/message"
)

// DefaultRate is the fraction of the remaining error closed per second of simulated time.
const DefaultRate = 10.0

type Transform struct {
	Position  message.Vec3
	Velocity  message.Vec3
	RotationY float32
	Swimming  bool
}

func TransformFromState(state message.PlayerState) Transform {
	return Transform{
		Position:  state.Position,
		Velocity:  state.Velocity,
		RotationY: state.RotationY,
		Swimming:  state.Swimming,
	}
}

// RemoteEntityState tracks one remote player: the last confirmed transform and the smoothed
// transform shown to the renderer.
type RemoteEntityState struct {
	PeerId    int32
	Target    Transform
	Displayed Transform

	// Number of confirmed states applied, the first included
	Updates int
}

// NewRemoteEntityState starts displayed at the first confirmed state, so a new entity never
// slides in from the origin.
func NewRemoteEntityState(state message.PlayerState) *RemoteEntityState {
	t := TransformFromState(state)
	return &RemoteEntityState{
		PeerId:    state.PeerId,
		Target:    t,
		Displayed: t,
		Updates:   1,
	}
}

// SetTarget replaces the target; the last state applied wins.
func (e *RemoteEntityState) SetTarget(state message.PlayerState) {
	e.Target = TransformFromState(state)
	e.Updates++
}

// InterpolationFactor is clamp(rate*dt, 0, 1). Non-finite or negative input gives 0.
func InterpolationFactor(rate, dt float64) float64 {
	f := rate * dt
	if math.IsNaN(f) || math.IsInf(f, 0) || dt < 0 || rate < 0 {
		return 0
	}
	return math.Min(f, 1)
}

// Step moves displayed toward target. Velocity and swimming are not smoothed.
func (e *RemoteEntityState) Step(dt, rate float64) {
	f := InterpolationFactor(rate, dt)

	e.Displayed.Velocity = e.Target.Velocity
	e.Displayed.Swimming = e.Target.Swimming

	if f >= 1 {
		e.Displayed.Position = e.Target.Position
		e.Displayed.RotationY = e.Target.RotationY
		return
	}
	if f == 0 {
		return
	}

	e.Displayed.Position = lerpVec3(e.Displayed.Position, e.Target.Position, f)
	e.Displayed.RotationY = WrapDegrees(float64(e.Displayed.RotationY) + ShortestArc(e.Displayed.RotationY, e.Target.RotationY)*f)
}

// WrapDegrees maps an angle into [-180, 180).
func WrapDegrees(deg float64) float32 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	out := float32(w - 180)
	if out >= 180 {
		// float32 rounding just below the seam
		return -180
	}
	return out
}

// ShortestArc is the signed angle in degrees, within [-180, 180], that turns from onto to.
func ShortestArc(from, to float32) float64 {
	d := math.Mod(float64(to)-float64(from), 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

func lerp(a, b float32, f float64) float32 {
	return float32(float64(a) + (float64(b)-float64(a))*f)
}

func lerpVec3(a, b message.Vec3, f float64) message.Vec3 {
	return message.Vec3{
		X: lerp(a.X, b.X, f),
		Y: lerp(a.Y, b.Y, f),
		Z: lerp(a.Z, b.Z, f),
	}
}
