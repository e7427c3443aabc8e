// Package engine provides basic physics components for the ECS.
// This file defines the fundamental spatial components every simulated
// entity carries: PositionComponent and VelocityComponent.
package engine

// PositionComponent represents an entity's position in 2D space.
//
// PrevX/PrevY hold the position at the start of the current interpolation
// or reconciliation bracket. The skirmish entity factories seed them to the
// spawn position and the reconciler's rewind resets them for the local
// player. For remote entities, RemoteInterpolationApplier writes the "from"
// snapshot position into PrevX/PrevY and the interpolated render position
// into X/Y; the "to" snapshot position itself is not kept on the component.
type PositionComponent struct {
	X, Y         float64
	PrevX, PrevY float64
}

// Type returns the component type identifier.
func (p *PositionComponent) Type() string {
	return "position"
}

// VelocityComponent represents an entity's velocity in 2D space.
type VelocityComponent struct {
	VX, VY float64
}

// Type returns the component type identifier.
func (v *VelocityComponent) Type() string {
	return "velocity"
}
