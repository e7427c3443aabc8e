package netcode

import (
	"math"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// RemoteInterpolationApplier writes the interpolated render position for
// every remote (non-local-player) entity each frame, from the snapshot
// buffer's current bracket. It never touches the local player entity: that
// entity's rendered position comes directly from prediction, never from
// interpolation, since interpolating it would visibly lag the player's own
// input. Bullets on the local timeline (predicted, or adopted local shots)
// are skipped for the same reason.
type RemoteInterpolationApplier struct {
	Maps *EidMaps
	// Tracker supplies the local-timeline bullet set. Optional; nil means
	// every mapped bullet interpolates.
	Tracker *PredictedEntityTracker
	// localPlayerEid identifies the entity this applier must skip.
	localPlayerEid uint64

	// Reused per-call index buffers, so steady-state frames don't allocate.
	playerIndex map[uint64]int
	bulletIndex map[uint64]int
	enemyIndex  map[uint64]int
}

// NewRemoteInterpolationApplier creates an applier that will skip
// localPlayerEid's entity when writing interpolated state.
func NewRemoteInterpolationApplier(maps *EidMaps, localPlayerEid uint64) *RemoteInterpolationApplier {
	return &RemoteInterpolationApplier{
		Maps:           maps,
		localPlayerEid: localPlayerEid,
		playerIndex:    make(map[uint64]int),
		bulletIndex:    make(map[uint64]int),
		enemyIndex:     make(map[uint64]int),
	}
}

// Apply writes lerp(From, To, Alpha) onto every remote player, bullet, and
// enemy entity present in both sides of the bracket, records the From
// position as Position.Prev for motion-derived rendering, and sets the
// world's tick to the interpolated bracket tick. Entities only present in
// To (just spawned) snap directly to their To position rather than lerping
// from a position they didn't have yet. Returns the applied alpha for
// downstream renderers.
func (a *RemoteInterpolationApplier) Apply(world *engine.World, state InterpolationState) float64 {
	tickSpan := float64(state.To.Tick) - float64(state.From.Tick)
	world.SetTick(state.From.Tick + uint32(math.Round(tickSpan*state.Alpha)))

	clearIndex(a.playerIndex)
	for i, p := range state.From.Players {
		a.playerIndex[p.Eid] = i
	}
	for _, to := range state.To.Players {
		localEid, ok := a.Maps.Players.LocalFor(to.Eid)
		if !ok || localEid == a.localPlayerEid {
			continue
		}
		entity, ok := world.GetEntity(localEid)
		if !ok {
			continue
		}
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		if i, ok := a.playerIndex[to.Eid]; ok {
			from := state.From.Players[i]
			pos.PrevX, pos.PrevY = from.X, from.Y
			pos.X = lerp(from.X, to.X, state.Alpha)
			pos.Y = lerp(from.Y, to.Y, state.Alpha)
			if zc, ok := entity.GetComponent("zposition"); ok {
				zc.(*engine.ZPositionComponent).Z = lerp(from.Z, to.Z, state.Alpha)
			}
		} else {
			pos.PrevX, pos.PrevY = to.X, to.Y
			pos.X, pos.Y = to.X, to.Y
		}
	}

	clearIndex(a.bulletIndex)
	for i, b := range state.From.Bullets {
		a.bulletIndex[b.Eid] = i
	}
	for _, to := range state.To.Bullets {
		localEid, ok := a.Maps.Bullets.LocalFor(to.Eid)
		if !ok {
			continue
		}
		if a.Tracker != nil && a.Tracker.IsLocalTimeline(localEid) {
			continue
		}
		entity, ok := world.GetEntity(localEid)
		if !ok {
			continue
		}
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		if i, ok := a.bulletIndex[to.Eid]; ok {
			from := state.From.Bullets[i]
			pos.PrevX, pos.PrevY = from.X, from.Y
			pos.X = lerp(from.X, to.X, state.Alpha)
			pos.Y = lerp(from.Y, to.Y, state.Alpha)
		} else {
			pos.PrevX, pos.PrevY = to.X, to.Y
			pos.X, pos.Y = to.X, to.Y
		}
	}

	clearIndex(a.enemyIndex)
	for i, e := range state.From.Enemies {
		a.enemyIndex[e.Eid] = i
	}
	for _, to := range state.To.Enemies {
		localEid, ok := a.Maps.Enemies.LocalFor(to.Eid)
		if !ok {
			continue
		}
		entity, ok := world.GetEntity(localEid)
		if !ok {
			continue
		}
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		if i, ok := a.enemyIndex[to.Eid]; ok {
			from := state.From.Enemies[i]
			pos.PrevX, pos.PrevY = from.X, from.Y
			pos.X = lerp(from.X, to.X, state.Alpha)
			pos.Y = lerp(from.Y, to.Y, state.Alpha)
		} else {
			pos.PrevX, pos.PrevY = to.X, to.Y
			pos.X, pos.Y = to.X, to.Y
		}
	}

	return state.Alpha
}

// clearIndex empties a reused eid->slice-index map without reallocating.
func clearIndex(index map[uint64]int) {
	for k := range index {
		delete(index, k)
	}
}

func lerp(a, b, alpha float64) float64 {
	return a + (b-a)*alpha
}
