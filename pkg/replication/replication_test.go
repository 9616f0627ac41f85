package replication

import (
	"math"
	"testing"

	"github.com/sessamekesh/splatnet/pkg/message"
)

func state(peerId int32, x float32, yaw float32) message.PlayerState {
	return message.PlayerState{
		PeerId:    peerId,
		Position:  message.Vec3{X: x},
		Velocity:  message.Vec3{X: x / 10},
		RotationY: yaw,
	}
}

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestInterpolationFactor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		dt   float64
		want float64
	}{
		{"typical frame", 10, 1.0 / 60, 10.0 / 60},
		{"long frame clamps", 10, 0.5, 1},
		{"zero dt", 10, 0, 0},
		{"negative dt", 10, -0.1, 0},
		{"nan dt", 10, math.NaN(), 0},
		{"infinite dt", 10, math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InterpolationFactor(tt.rate, tt.dt); !near(got, tt.want, 1e-9) {
				t.Errorf("InterpolationFactor(%v, %v) = %v, want %v", tt.rate, tt.dt, got, tt.want)
			}
		})
	}
}

func TestShortestArc(t *testing.T) {
	tests := []struct {
		from, to float32
		want     float64
	}{
		{0, 90, 90},
		{350, 10, 20},
		{10, 350, -20},
		{-170, 170, -20},
		{0, 720, 0},
	}

	for _, tt := range tests {
		if got := ShortestArc(tt.from, tt.to); !near(got, tt.want, 1e-4) {
			t.Errorf("ShortestArc(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFirstStateIsDisplayedImmediately(t *testing.T) {
	e := NewRemoteEntityState(state(3, 5, 45))
	if e.Displayed != e.Target || e.Displayed.Position.X != 5 {
		t.Fatalf("new entity should display its first state, got %+v", e.Displayed)
	}
}

func TestStepConvergesToTarget(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 0))
	e.SetTarget(state(1, 10, 90))

	prevErr := math.Inf(1)
	for i := 0; i < 120; i++ {
		e.Step(1.0/60, DefaultRate)
		errX := math.Abs(float64(e.Target.Position.X - e.Displayed.Position.X))
		if errX > prevErr {
			t.Fatalf("error grew at step %d: %v > %v", i, errX, prevErr)
		}
		prevErr = errX
	}

	if !near(float64(e.Displayed.Position.X), 10, 1e-3) {
		t.Errorf("position did not converge: %v", e.Displayed.Position.X)
	}
	if !near(ShortestArc(e.Displayed.RotationY, 90), 0, 1e-2) {
		t.Errorf("yaw did not converge: %v", e.Displayed.RotationY)
	}
}

func TestStepSnapsVelocityAndSwimming(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 0))
	next := state(1, 10, 0)
	next.Swimming = true
	e.SetTarget(next)

	e.Step(1.0/60, DefaultRate)
	if e.Displayed.Velocity != next.Velocity || !e.Displayed.Swimming {
		t.Fatalf("velocity and swimming should snap, got %+v", e.Displayed)
	}
	if e.Displayed.Position.X >= 10 {
		t.Fatalf("position should be smoothed, got %v", e.Displayed.Position.X)
	}
}

func TestLargeStepReachesTarget(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 0))
	e.SetTarget(state(1, 10, 270))

	e.Step(1, DefaultRate)
	if e.Displayed.Position.X != 10 || e.Displayed.RotationY != 270 {
		t.Fatalf("factor 1 should land on target, got %+v", e.Displayed)
	}
}

func TestBadDtLeavesDisplayedUntouched(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 0))
	e.SetTarget(state(1, 10, 90))

	for _, dt := range []float64{math.NaN(), -1, math.Inf(1)} {
		e.Step(dt, DefaultRate)
	}
	if e.Displayed.Position.X != 0 || e.Displayed.RotationY != 0 {
		t.Fatalf("displayed moved on invalid dt: %+v", e.Displayed)
	}
}

func TestYawTurnsTheShortWay(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 350))
	e.SetTarget(state(1, 0, 10))

	e.Step(0.05, DefaultRate)
	// Half of the 20 degree arc, through 360 rather than back through 180
	if !near(ShortestArc(e.Displayed.RotationY, 0), 0, 1e-3) {
		t.Fatalf("expected yaw at 0/360, got %v", e.Displayed.RotationY)
	}
}

func TestYawStaysWrappedAcrossSeam(t *testing.T) {
	e := NewRemoteEntityState(state(1, 0, 170))
	e.SetTarget(state(1, 0, -170))

	for i := 0; i < 200; i++ {
		e.Step(1.0/60, DefaultRate)
		if yaw := e.Displayed.RotationY; yaw < -180 || yaw >= 180 {
			t.Fatalf("step %d: yaw %v outside [-180, 180)", i, yaw)
		}
	}
	if !near(float64(e.Displayed.RotationY), -170, 1e-3) {
		t.Fatalf("displayed yaw %v did not converge to -170", e.Displayed.RotationY)
	}
}

func TestWrapDegrees(t *testing.T) {
	tests := []struct {
		in   float64
		want float32
	}{
		{0, 0},
		{190, -170},
		{-190, 170},
		{180, -180},
		{540, -180},
		{-725, -5},
	}

	for _, tt := range tests {
		if got := WrapDegrees(tt.in); !near(float64(got), float64(tt.want), 1e-4) {
			t.Errorf("WrapDegrees(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLastAppliedStateWins(t *testing.T) {
	s := CreateSet(SetParams{})

	s.Apply(state(2, 1, 0))
	s.Apply(state(2, 7, 0))
	// A stale report that arrives late still wins; ordering is the transport's concern
	s.Apply(state(2, 4, 0))
	e, _ := s.Get(2)
	if e.Target.Position.X != 4 || e.Updates != 3 {
		t.Fatalf("unexpected entity %+v", e)
	}

	// Fresh data then converges regardless of what came before
	s.Apply(state(2, 20, 0))
	for i := 0; i < 200; i++ {
		s.Step(1.0 / 60)
	}
	if !near(float64(e.Displayed.Position.X), 20, 1e-3) {
		t.Fatalf("did not converge to the freshest state: %v", e.Displayed.Position.X)
	}
}

func TestSetLifecycle(t *testing.T) {
	s := CreateSet(SetParams{Rate: 5})

	if _, created := s.Apply(state(4, 0, 0)); !created {
		t.Fatal("first state should create the entity")
	}
	if _, created := s.Apply(state(4, 1, 0)); created {
		t.Fatal("second state should update, not create")
	}
	s.Apply(state(1, 0, 0))

	ids := s.Ids()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Fatalf("ids = %v", ids)
	}

	stepped := s.Step(0.01)
	if len(stepped) != 2 || stepped[0].PeerId != 1 {
		t.Fatalf("step should return entities ordered by id")
	}

	if !s.Remove(4) || s.Remove(4) {
		t.Fatal("remove should succeed exactly once")
	}
	if _, created := s.Apply(state(4, 0, 0)); !created {
		t.Fatal("a removed id is bootstrapped again by a fresh state")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatal("clear left entities behind")
	}
}
