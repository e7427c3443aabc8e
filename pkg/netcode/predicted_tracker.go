package netcode

import (
	"math"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// PredictedBulletTimeoutTicks is how many server ticks a client-predicted
// bullet is kept waiting for a matching authoritative bullet before it is
// discarded as a misprediction (the server never fired it - a dry-fire the
// client predicted as a hit, or a shot that missed validation).
const PredictedBulletTimeoutTicks = 30

// Adoption tolerances. The primary tolerance widens with RTT: the further
// the client is ahead of the snapshot it is matching against, the further
// its predicted bullet has travelled past the authoritative spawn position.
// One half round trip at pistol muzzle speed bounds that lead, capped so a
// terrible connection can't adopt across half the arena. The fallback is a
// last-chance radius before giving up and spawning a duplicate.
const (
	adoptionBaseTolerance     = 40.0
	adoptionRTTToleranceCap   = 120.0
	adoptionFallbackTolerance = 180.0

	// PistolBulletSpeed matches the muzzle speed NewSkirmishPlayerEntity
	// equips (world units per second); used only for the tolerance bound.
	PistolBulletSpeed = 480.0
)

// adoptionTolerance returns the primary match radius for the given
// round-trip estimate.
func adoptionTolerance(rttMs int64) float64 {
	lead := float64(rttMs) / 2 * PistolBulletSpeed / 1000
	if lead > adoptionRTTToleranceCap {
		lead = adoptionRTTToleranceCap
	}
	return adoptionBaseTolerance + lead
}

// predictedBullet is a client-spawned bullet entity awaiting adoption by a
// matching authoritative BulletSnapshot.
type predictedBullet struct {
	entity    *engine.Entity
	ownerEid  uint64
	spawnTick uint32
	shootSeq  uint32
}

// PredictedEntityTracker tracks locally-predicted bullets from the moment
// WeaponFireSystem spawns them until either the server's snapshot adopts
// them (binding the local entity to a server eid instead of creating a
// second, duplicate entity) or they time out and are removed as a
// misprediction. It also owns the local-timeline set: bullets whose render
// position follows present-time prediction instead of delayed
// interpolation. Every predicted bullet is local-timeline, and an adopted
// bullet stays local-timeline for its lifetime so the player's own shots
// never visibly jump backwards onto the interpolation delay.
type PredictedEntityTracker struct {
	world         *engine.World
	pending       []predictedBullet
	localTimeline map[uint64]bool
}

// NewPredictedEntityTracker creates a tracker operating against world.
func NewPredictedEntityTracker(world *engine.World) *PredictedEntityTracker {
	return &PredictedEntityTracker{world: world, localTimeline: make(map[uint64]bool)}
}

// TrackNewBullet registers a client-spawned bullet entity as pending
// adoption and marks it local-timeline. Called by the client's
// WeaponFireSystem.SpawnBullet hook.
func (t *PredictedEntityTracker) TrackNewBullet(entity *engine.Entity, ownerEid uint64, spawnTick uint32, shootSeq uint32) {
	t.pending = append(t.pending, predictedBullet{
		entity:    entity,
		ownerEid:  ownerEid,
		spawnTick: spawnTick,
		shootSeq:  shootSeq,
	})
	t.localTimeline[entity.ID] = true
}

// TryAdopt looks for a pending predicted bullet matching an incoming
// authoritative BulletSnapshot: same owner, player-bullet layer, and
// nearest by distance within the RTT-scaled primary tolerance (or the
// fixed fallback radius). On a match it removes the bullet from the
// pending list — leaving it local-timeline — and returns its entity so the
// ingestor can bind the server eid directly to the already-existing local
// entity instead of spawning a duplicate. Returns nil if no match.
func (t *PredictedEntityTracker) TryAdopt(snapshot BulletSnapshot, rttMs int64) *engine.Entity {
	if snapshot.Layer != engine.LayerPlayerBullet {
		return nil
	}

	bestIdx := -1
	bestDist := math.MaxFloat64

	for i, pb := range t.pending {
		if pb.ownerEid != snapshot.OwnerEid {
			continue
		}
		pos := pb.entity.GetPosition()
		if pos == nil {
			continue
		}
		dist := math.Hypot(pos.X-snapshot.X, pos.Y-snapshot.Y)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	if bestIdx == -1 {
		return nil
	}
	if bestDist > adoptionTolerance(rttMs) && bestDist > adoptionFallbackTolerance {
		return nil
	}

	matched := t.pending[bestIdx].entity
	t.pending = append(t.pending[:bestIdx], t.pending[bestIdx+1:]...)
	return matched
}

// IsLocalTimeline reports whether the local entity id renders in present
// time (predicted or adopted local bullet) rather than on the
// interpolation delay. The RemoteInterpolationApplier skips these.
func (t *PredictedEntityTracker) IsLocalTimeline(localEid uint64) bool {
	return t.localTimeline[localEid]
}

// MarkLocalTimeline adds a local entity id to the local-timeline set; the
// ingestor uses this for server-spawned bullets owned by the local player.
func (t *PredictedEntityTracker) MarkLocalTimeline(localEid uint64) {
	t.localTimeline[localEid] = true
}

// ForgetLocalTimeline drops a destroyed entity from the local-timeline set.
func (t *PredictedEntityTracker) ForgetLocalTimeline(localEid uint64) {
	delete(t.localTimeline, localEid)
}

// CleanupExpired removes predicted bullets that have waited more than
// PredictedBulletTimeoutTicks since their spawn tick without being adopted,
// deleting their local entity as a misprediction. Returns how many were
// removed.
func (t *PredictedEntityTracker) CleanupExpired(currentTick uint32) int {
	removed := 0
	kept := t.pending[:0]
	for _, pb := range t.pending {
		if currentTick-pb.spawnTick > PredictedBulletTimeoutTicks {
			t.world.RemoveEntity(pb.entity.ID)
			delete(t.localTimeline, pb.entity.ID)
			removed++
			continue
		}
		kept = append(kept, pb)
	}
	t.pending = kept
	return removed
}

// Pending reports how many predicted bullets are currently awaiting
// adoption.
func (t *PredictedEntityTracker) Pending() int {
	return len(t.pending)
}

// Clear destroys every still-predicted bullet entity and resets all
// tracker state, used when the client's local player entity itself is torn
// down (disconnect, or the local player vanishing from a snapshot).
func (t *PredictedEntityTracker) Clear() {
	for _, pb := range t.pending {
		t.world.RemoveEntity(pb.entity.ID)
	}
	t.pending = t.pending[:0]
	t.localTimeline = make(map[uint64]bool)
}
