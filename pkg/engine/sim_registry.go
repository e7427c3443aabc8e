// Package engine provides the deterministic simulation registry the tick
// driver steps every frame. This file defines SystemRegistry, an ordered,
// named list of simulation steps, generalizing the engine's existing
// System/Update(entities, dt) convention to the (world, dt) signature the
// netcode core's prediction and replay passes need.
package engine

// SimSystemFunc is one named simulation step. Unlike System.Update, it
// receives the World directly so it can consult World.Scope(),
// World.PlayerInput(eid), and World.Tick() — the hooks the prediction and
// replay sets rely on to behave differently for Full vs LocalPlayer scope.
//
// Contract (per the simulation registry's determinism requirement): for a
// given (pre-state, input) pair a SimSystemFunc must produce the same
// world delta every time it runs, and must not emit presentation events
// that were already emitted for the same logical action.
type SimSystemFunc func(world *World, dt float64)

// Standard registry set names.
const (
	SetPrediction = "PREDICTION"
	SetReplay     = "REPLAY"
)

// namedSystem pairs a registration with the name it was registered under,
// preserving insertion order for deterministic run order.
type namedSystem struct {
	name string
	fn   SimSystemFunc
}

// SystemRegistry is an ordered list of named simulation steps, grouped into
// sets (PREDICTION, REPLAY, or any caller-defined name). Registration order
// within a set is run order.
type SystemRegistry struct {
	sets map[string][]namedSystem
}

// NewSystemRegistry creates an empty registry.
func NewSystemRegistry() *SystemRegistry {
	return &SystemRegistry{sets: make(map[string][]namedSystem)}
}

// Register appends fn to the named set, under the given step name.
func (r *SystemRegistry) Register(set, name string, fn SimSystemFunc) {
	r.sets[set] = append(r.sets[set], namedSystem{name: name, fn: fn})
}

// Run executes every system registered under set, in registration order.
func (r *SystemRegistry) Run(set string, world *World, dt float64) {
	for _, sys := range r.sets[set] {
		sys.fn(world, dt)
	}
}

// Names returns the registered step names for a set, in run order. Used by
// tests asserting registration order and by diagnostics.
func (r *SystemRegistry) Names(set string) []string {
	systems := r.sets[set]
	names := make([]string, len(systems))
	for i, sys := range systems {
		names[i] = sys.name
	}
	return names
}
