package netcode

import (
	"github.com/hollowtick/skirmish/pkg/engine"
)

// DefaultCharacterID is what CreatePlayer receives for a remote player that
// appears in a snapshot before any roster information has arrived. The
// placeholder resolves itself on the next roster update.
const DefaultCharacterID uint8 = 0

// LocalEntityFactory creates the local-side entity for a server entity the
// client has not seen before, and returns it. The ingestor then binds the
// server id to the returned entity's id and proceeds to apply state to it
// like any already-known entity.
type LocalEntityFactory interface {
	CreatePlayer(world *engine.World, serverEid uint64, characterID uint8) *engine.Entity
	CreateBullet(world *engine.World, serverEid uint64, ownerLocalEid uint64, layer uint8) *engine.Entity
	CreateEnemy(world *engine.World, serverEid uint64, enemyType, tier uint8) *engine.Entity
}

// SnapshotIngestor applies an authoritative WorldSnapshot onto a client
// World, in four phases: players, then bullets, then enemies, then derived
// state (zones, dynamite, predicted-bullet cleanup) that depends on the
// first three already being current. Applying in any other order risks
// e.g. a bullet's owner lookup racing the player that owns it.
type SnapshotIngestor struct {
	Maps    *EidMaps
	Factory LocalEntityFactory
	Tracker *PredictedEntityTracker

	// RTT supplies the current round-trip estimate (milliseconds) used to
	// scale the predicted-bullet adoption tolerance. Nil means zero RTT.
	RTT func() int64

	// Telemetry, when set, counts predicted-bullet adoptions and expiries.
	Telemetry *MultiplayerTelemetry

	// ResolveCharacter maps a remote player's server eid to its character
	// id, typically backed by the roster message. Nil, or a miss, falls
	// back to the last-known id for that eid, then to DefaultCharacterID.
	ResolveCharacter func(serverEid uint64) (uint8, bool)

	// LocalPlayerServerEid is the server eid of the player this client
	// controls, if any. applyPlayers leaves that entity's position/velocity
	// untouched since the Reconciler (not the ingestor) owns folding
	// authoritative state back into a predicted local player. Zero means
	// no local player is bound yet (e.g. before the game-config handshake
	// response arrives), so every player in the snapshot is treated as
	// remote.
	LocalPlayerServerEid uint64

	// LocalCharacterID overrides the roster for the local player; the
	// client knows its own pick before the server echoes it.
	LocalCharacterID uint8

	// Zones and Dynamite hold the latest snapshot's derived collections
	// with owner eids remapped to local entity ids, for the presentation
	// layer to draw. They are replaced wholesale each Apply.
	Zones    []LastRitesZoneSnapshot
	Dynamite []DynamiteSnapshot

	// lastEnemyServerHP remembers the previous snapshot's authoritative HP
	// per enemy server-eid, so applyEnemyHealthOptimistic can tell "server
	// hasn't registered a hit yet" (reported HP unchanged) apart from "the
	// server just applied actual damage/heal" (reported HP changed).
	lastEnemyServerHP map[uint64]float64

	// lastEnemyObserved remembers each enemy's previous snapshot position
	// and timestamp so applyEnemies can estimate a velocity from the delta
	// (used by collision extrapolation, not by interpolation).
	lastEnemyObserved map[uint64]enemyObservation

	// lastCharacter is each remote player's last resolved character id,
	// the fallback when the roster lags the snapshot.
	lastCharacter map[uint64]uint8
}

type enemyObservation struct {
	x, y         float64
	serverTimeMs int64
}

// NewSnapshotIngestor creates an ingestor sharing the given id maps and
// predicted-bullet tracker with the rest of the client's netcode state.
func NewSnapshotIngestor(maps *EidMaps, factory LocalEntityFactory, tracker *PredictedEntityTracker) *SnapshotIngestor {
	return &SnapshotIngestor{
		Maps:              maps,
		Factory:           factory,
		Tracker:           tracker,
		lastEnemyServerHP: make(map[uint64]float64),
		lastEnemyObserved: make(map[uint64]enemyObservation),
		lastCharacter:     make(map[uint64]uint8),
	}
}

// SetLocalPlayer records which server eid is this client's own player, so
// applyPlayers knows to leave its position/velocity to the Reconciler
// instead of overwriting it directly.
func (ing *SnapshotIngestor) SetLocalPlayer(serverEid uint64) {
	ing.LocalPlayerServerEid = serverEid
}

// Apply ingests snapshot into world, creating, updating, or removing local
// entities to match. It overwrites world's tick to the snapshot's tick
// before doing any of the four phases, so that systems invoked later this
// frame (if any) observe the authoritative tick rather than a stale local
// one.
func (ing *SnapshotIngestor) Apply(world *engine.World, snapshot WorldSnapshot) {
	world.SetTick(snapshot.Tick)

	ing.applyPlayers(world, snapshot.Players)
	ing.applyBullets(world, snapshot.Bullets)
	ing.applyEnemies(world, snapshot)
	ing.applyDerived(world, snapshot)
}

func (ing *SnapshotIngestor) rtt() int64 {
	if ing.RTT == nil {
		return 0
	}
	return ing.RTT()
}

func (ing *SnapshotIngestor) characterFor(serverEid uint64) uint8 {
	if ing.LocalPlayerServerEid != 0 && serverEid == ing.LocalPlayerServerEid {
		return ing.LocalCharacterID
	}
	if ing.ResolveCharacter != nil {
		if id, ok := ing.ResolveCharacter(serverEid); ok {
			ing.lastCharacter[serverEid] = id
			return id
		}
	}
	if id, ok := ing.lastCharacter[serverEid]; ok {
		return id
	}
	return DefaultCharacterID
}

func (ing *SnapshotIngestor) applyPlayers(world *engine.World, players []PlayerSnapshot) {
	seen := make(map[uint64]bool, len(players))
	for _, ps := range players {
		seen[ps.Eid] = true

		localEid, ok := ing.Maps.Players.LocalFor(ps.Eid)
		var entity *engine.Entity
		if ok {
			entity, ok = world.GetEntity(localEid)
		}
		if !ok {
			entity = ing.Factory.CreatePlayer(world, ps.Eid, ing.characterFor(ps.Eid))
			ing.Maps.Players.Bind(ps.Eid, entity.ID)
		}

		// Local player position/velocity are authored by prediction; the
		// reconciler (not the ingestor) decides how to fold this
		// authoritative state back in for the locally-controlled player.
		// Remote players are written directly here.
		isLocalPlayer := ing.LocalPlayerServerEid != 0 && ps.Eid == ing.LocalPlayerServerEid
		if !isLocalPlayer {
			if pos := entity.GetPosition(); pos != nil {
				pos.PrevX, pos.PrevY = pos.X, pos.Y
				pos.X, pos.Y = ps.X, ps.Y
			}
			if vel := entity.GetVelocity(); vel != nil {
				vel.VX, vel.VY = ps.VX, ps.VY
			}
			if zc, ok := entity.GetComponent("zposition"); ok {
				z := zc.(*engine.ZPositionComponent)
				z.Z, z.ZVelocity = ps.Z, ps.ZVelocity
			}
			if pc, ok := entity.GetComponent("player"); ok {
				pc.(*engine.PlayerComponent).AimAngle = ps.AimAngle
			}
			if sc, ok := entity.GetComponent("player_state"); ok {
				sc.(*engine.PlayerStateComponent).Kind = engine.PlayerStateKind(ps.State)
			}
			if sd, ok := entity.GetComponent("showdown"); ok {
				showdown := sd.(*engine.ShowdownComponent)
				showdown.Active = ps.ShowdownActive
				showdown.TargetEid = ing.remapTarget(ps.ShowdownTargetEid)
			}
			if hc := entity.GetHealth(); hc != nil {
				ing.applyHealthOptimistic(hc, ps.HP, ps.MaxHP)
			}
		}
		if cyl, ok := entity.GetComponent("cylinder"); ok {
			cyl.(*engine.CylinderComponent).Rounds = int(ps.Rounds)
		}

		applyFlagComponent(entity, ps.Flags&FlagDead != 0, "dead", func() engine.Component { return &engine.DeadComponent{} })
		applyFlagComponent(entity, ps.Flags&FlagInvincible != 0, "invincible", func() engine.Component { return &engine.InvincibleComponent{} })
	}

	for serverEid, localEid := range snapshotServerIDs(ing.Maps.Players) {
		if seen[serverEid] {
			continue
		}
		world.RemoveEntity(localEid)
		ing.Maps.Players.Unbind(serverEid)
		delete(ing.lastCharacter, serverEid)

		if ing.LocalPlayerServerEid != 0 && serverEid == ing.LocalPlayerServerEid {
			// The server dropped this client's own player: clear the local
			// identity and tear down every still-predicted bullet with it.
			ing.LocalPlayerServerEid = 0
			ing.Tracker.Clear()
		}
	}
}

// applyFlagComponent syncs a tag component's presence to a snapshot flag
// bit.
func applyFlagComponent(entity *engine.Entity, present bool, componentType string, build func() engine.Component) {
	has := entity.HasComponent(componentType)
	switch {
	case present && !has:
		entity.AddComponent(build())
	case !present && has:
		entity.RemoveComponent(componentType)
	}
}

// remapTarget resolves a wire target eid (a player, or an enemy) to the
// corresponding local entity id; zero if the target is unknown locally.
func (ing *SnapshotIngestor) remapTarget(wireEid uint64) uint64 {
	if wireEid == 0 {
		return 0
	}
	if local, ok := ing.Maps.Players.LocalFor(wireEid); ok {
		return local
	}
	if local, ok := ing.Maps.Enemies.LocalFor(wireEid); ok {
		return local
	}
	return 0
}

func (ing *SnapshotIngestor) applyBullets(world *engine.World, bullets []BulletSnapshot) {
	seen := make(map[uint64]bool, len(bullets))
	for _, bs := range bullets {
		seen[bs.Eid] = true

		ownerLocal, ownerIsLocalPlayer := ing.resolveBulletOwner(bs.OwnerEid)

		localEid, ok := ing.Maps.Bullets.LocalFor(bs.Eid)
		var entity *engine.Entity
		if ok {
			entity, ok = world.GetEntity(localEid)
		}
		created := false
		if !ok {
			// Give the predicted tracker a chance to adopt a client-spawned
			// bullet before creating a brand new local entity for it.
			if adopted := ing.Tracker.TryAdopt(bs, ing.rtt()); adopted != nil {
				entity = adopted
				if ing.Telemetry != nil {
					ing.Telemetry.RecordPredictedAdopted()
				}
			} else {
				entity = ing.Factory.CreateBullet(world, bs.Eid, ownerLocal, bs.Layer)
				created = true
			}
			ing.Maps.Bullets.Bind(bs.Eid, entity.ID)
		}

		// The local player's own bullets render in present time; everyone
		// else's ride the interpolation delay.
		if ownerIsLocalPlayer {
			ing.Tracker.MarkLocalTimeline(entity.ID)
		}

		// Local-timeline bullets keep their predicted position after the
		// first placement: snapping them back to the (interpolation-delayed)
		// authoritative position would visibly teleport the player's own
		// shots each snapshot.
		if pos := entity.GetPosition(); pos != nil && (created || !ing.Tracker.IsLocalTimeline(entity.ID)) {
			pos.PrevX, pos.PrevY = pos.X, pos.Y
			pos.X, pos.Y = bs.X, bs.Y
		}
		if vel := entity.GetVelocity(); vel != nil {
			vel.VX, vel.VY = bs.VX, bs.VY
		}
		if cc, ok := entity.GetComponent("circle_collider"); ok {
			cc.(*engine.CircleColliderComponent).Layer = bs.Layer
		}
		if bc, ok := entity.GetComponent("bullet"); ok {
			bc.(*engine.BulletComponent).OwnerID = ownerLocal
		}
	}

	for serverEid, localEid := range snapshotServerIDs(ing.Maps.Bullets) {
		if seen[serverEid] {
			continue
		}
		world.RemoveEntity(localEid)
		ing.Maps.Bullets.Unbind(serverEid)
		ing.Tracker.ForgetLocalTimeline(localEid)
	}
}

// resolveBulletOwner maps a wire owner eid to the owning local entity id
// (players first, then enemies; zero when unowned or unknown), and reports
// whether the owner is this client's own player.
func (ing *SnapshotIngestor) resolveBulletOwner(ownerWireEid uint64) (localEid uint64, isLocalPlayer bool) {
	if ownerWireEid == 0 {
		return 0, false
	}
	if local, ok := ing.Maps.Players.LocalFor(ownerWireEid); ok {
		return local, ing.LocalPlayerServerEid != 0 && ownerWireEid == ing.LocalPlayerServerEid
	}
	if local, ok := ing.Maps.Enemies.LocalFor(ownerWireEid); ok {
		return local, false
	}
	return 0, false
}

func (ing *SnapshotIngestor) applyEnemies(world *engine.World, snapshot WorldSnapshot) {
	seen := make(map[uint64]bool, len(snapshot.Enemies))
	for _, es := range snapshot.Enemies {
		seen[es.Eid] = true

		localEid, ok := ing.Maps.Enemies.LocalFor(es.Eid)
		var entity *engine.Entity
		if ok {
			entity, ok = world.GetEntity(localEid)
		}
		if !ok {
			entity = ing.Factory.CreateEnemy(world, es.Eid, es.EnemyType, es.Tier)
			ing.Maps.Enemies.Bind(es.Eid, entity.ID)
		}

		if pos := entity.GetPosition(); pos != nil {
			pos.PrevX, pos.PrevY = pos.X, pos.Y
			pos.X, pos.Y = es.X, es.Y
		}
		if hc := entity.GetHealth(); hc != nil {
			ing.applyEnemyHealthOptimistic(hc, es.Eid, es.HP, es.MaxHP)
		}
		if ac, ok := entity.GetComponent("enemy_ai"); ok {
			ai := ac.(*engine.EnemyAIComponent)
			ai.State = es.AiState
			if target, ok := ing.Maps.Players.LocalFor(es.TargetEid); ok {
				ai.TargetEid = target
			} else {
				ai.TargetEid = 0
			}
		}

		// Estimate a velocity from the delta against the previous snapshot:
		// the collision systems extrapolate enemies with it between
		// snapshots even though interpolation never reads it.
		if vel := entity.GetVelocity(); vel != nil {
			if prev, ok := ing.lastEnemyObserved[es.Eid]; ok {
				dtMs := snapshot.ServerTimeMs - prev.serverTimeMs
				if dtMs > 0 {
					vel.VX = (es.X - prev.x) / float64(dtMs) * 1000
					vel.VY = (es.Y - prev.y) / float64(dtMs) * 1000
				}
			}
		}
		ing.lastEnemyObserved[es.Eid] = enemyObservation{x: es.X, y: es.Y, serverTimeMs: snapshot.ServerTimeMs}
	}

	for serverEid, localEid := range snapshotServerIDs(ing.Maps.Enemies) {
		if seen[serverEid] {
			continue
		}
		world.RemoveEntity(localEid)
		ing.Maps.Enemies.Unbind(serverEid)
		delete(ing.lastEnemyServerHP, serverEid)
		delete(ing.lastEnemyObserved, serverEid)
	}
}

// applyEnemyHealthOptimistic implements the "optimistic enemy HP" rule: if
// the server-reported HP is unchanged from the previous snapshot but the
// client's local value is already lower (the client predicted a hit the
// server hasn't processed yet), keep the lower local value instead of
// flashing back up to the stale server figure. Any change in the reported
// HP (damage registered server-side, or a heal) always overwrites.
func (ing *SnapshotIngestor) applyEnemyHealthOptimistic(hc *engine.HealthComponent, serverEid uint64, hp, maxHP float64) {
	prevServerHP, known := ing.lastEnemyServerHP[serverEid]
	ing.lastEnemyServerHP[serverEid] = hp

	if known && hp == prevServerHP && hc.Current < hp {
		hc.Max = maxHP
		return
	}
	hc.Current = hp
	hc.Max = maxHP
}

// applyHealthOptimistic writes authoritative remote-player HP, refreshing
// the hit's iframe window whenever it drops. Player HP is always taken from
// the server directly: the client never predicts incoming damage, only
// outgoing damage to enemies, so there is no local-prediction value worth
// preserving here. (The local player's own HP is observed by the
// Reconciler instead, which also emits the player-hit event.)
func (ing *SnapshotIngestor) applyHealthOptimistic(hc *engine.HealthComponent, hp, maxHP float64) {
	tookDamage := hp < hc.Current
	hc.Current = hp
	hc.Max = maxHP
	if tookDamage && hc.IframeDuration > 0 {
		hc.Iframes = hc.IframeDuration
	}
}

func (ing *SnapshotIngestor) applyDerived(world *engine.World, snapshot WorldSnapshot) {
	ing.Zones = ing.Zones[:0]
	for _, z := range snapshot.Zones {
		z.OwnerEid = ing.remapTarget(z.OwnerEid)
		ing.Zones = append(ing.Zones, z)
	}
	ing.Dynamite = ing.Dynamite[:0]
	for _, d := range snapshot.Dynamite {
		d.OwnerEid = ing.remapTarget(d.OwnerEid)
		ing.Dynamite = append(ing.Dynamite, d)
	}

	if expired := ing.Tracker.CleanupExpired(snapshot.Tick); expired > 0 && ing.Telemetry != nil {
		for i := 0; i < expired; i++ {
			ing.Telemetry.RecordPredictedExpired()
		}
	}
}

// snapshotServerIDs returns a copy of the map's server->local bindings for
// safe iteration while the caller may mutate the map mid-loop.
func snapshotServerIDs(m *EidMap) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(m.serverToLocal))
	for k, v := range m.serverToLocal {
		out[k] = v
	}
	return out
}
