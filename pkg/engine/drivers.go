package engine

// SetAll names the full system set a non-predictive authoritative step
// runs — the server's per-tick simulation, or a single-player client
// running without network prediction at all. It is a third named registry
// alongside PREDICTION and REPLAY, not a union of the two: callers that
// want a system to run in every context register it under all three names
// they need.
const SetAll = "ALL"

// FullWorldDriver steps the entire world for one tick under FullScope,
// running every system registered under SetAll. It is used by the
// authoritative server (all entities, every tick) and by single-player
// play with networking disabled.
type FullWorldDriver struct {
	Registry    *SystemRegistry
	TickSeconds float64
}

// NewFullWorldDriver creates a driver stepping at the given fixed tick
// duration (seconds), using registry for system lookup.
func NewFullWorldDriver(registry *SystemRegistry, tickSeconds float64) *FullWorldDriver {
	return &FullWorldDriver{Registry: registry, TickSeconds: tickSeconds}
}

// Step writes eid's input for this tick and runs the ALL system set across
// the whole world, then advances World.Tick.
func (d *FullWorldDriver) Step(world *World, eid uint64, input TickInput) {
	world.SetScope(FullScope())
	world.SetPlayerInput(eid, input)
	d.Registry.Run(SetAll, world, d.TickSeconds)
	world.AdvanceTick()
}

// StepMany writes every player's input for this tick and runs the ALL
// system set once across the whole world, then advances World.Tick. This is
// the authoritative server's per-tick entry point: unlike Step, it applies
// every connected player's latest input before the single world-wide pass
// instead of running one pass per player.
func (d *FullWorldDriver) StepMany(world *World, inputs map[uint64]TickInput) {
	world.SetScope(FullScope())
	for eid, input := range inputs {
		world.SetPlayerInput(eid, input)
	}
	d.Registry.Run(SetAll, world, d.TickSeconds)
	world.AdvanceTick()
}

// LocalPlayerDriver steps a single local player entity under LocalPlayer
// scope, either predicting forward (Step) or replaying previously-applied
// inputs after a reconciliation rewind (Replay). Systems observing
// LocalPlayer scope must skip spatial-hash rebuilds and all remote-entity
// writes; see SimulationScope.
type LocalPlayerDriver struct {
	Registry    *SystemRegistry
	TickSeconds float64
}

// NewLocalPlayerDriver creates a driver stepping at the given fixed tick
// duration (seconds), using registry for system lookup.
func NewLocalPlayerDriver(registry *SystemRegistry, tickSeconds float64) *LocalPlayerDriver {
	return &LocalPlayerDriver{Registry: registry, TickSeconds: tickSeconds}
}

// Step runs the PREDICTION system set once for eid with the given input.
// Used every client tick to predict the local player forward.
func (d *LocalPlayerDriver) Step(world *World, eid uint64, input TickInput) {
	world.SetScope(LocalPlayerScope(eid))
	world.SetPlayerInput(eid, input)
	d.Registry.Run(SetPrediction, world, d.TickSeconds)
	world.AdvanceTick()
}

// Replay runs the REPLAY system set once per pending input, in the order
// given. Callers must pass pendingInputs already sorted ascending by
// sequence number — the reconciler's InputBuffer.GetPending() guarantees
// this. Replay never advances World.Tick itself; the caller restores the
// world's tick to the post-rewind value once replay completes (or lets it
// track the replayed input count, per the caller's own bookkeeping).
func (d *LocalPlayerDriver) Replay(world *World, eid uint64, pendingInputs []TickInput) {
	world.SetScope(LocalPlayerScope(eid))
	for _, input := range pendingInputs {
		world.SetPlayerInput(eid, input)
		d.Registry.Run(SetReplay, world, d.TickSeconds)
	}
}
