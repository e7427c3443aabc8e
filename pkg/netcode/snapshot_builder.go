package netcode

import "github.com/hollowtick/skirmish/pkg/engine"

// SnapshotBuildContext carries the per-player bookkeeping the lobby owns
// but the snapshot walk needs. PlayerWireEid translates a player's world
// entity id to the session-scoped eid the wire protocol (and the client's
// game-config handshake) speaks; entity ids absent from the map pass
// through unchanged, which is what bullets and enemies use.
type SnapshotBuildContext struct {
	// LastProcessedSeq maps each player entity id to the newest input
	// sequence number the server has applied for that player; each
	// recipient reads its own player record's value, so one snapshot
	// serves every connected client unmodified.
	LastProcessedSeq map[uint64]uint32

	PlayerWireEid map[uint64]uint64
}

func (ctx SnapshotBuildContext) wireEid(entityID uint64) uint64 {
	if wire, ok := ctx.PlayerWireEid[entityID]; ok {
		return wire
	}
	return entityID
}

// BuildWorldSnapshot walks the authoritative world and produces the
// server-time-stamped snapshot broadcast to clients.
func BuildWorldSnapshot(world *engine.World, serverTimeMs int64, ctx SnapshotBuildContext) WorldSnapshot {
	snapshot := WorldSnapshot{
		ServerTimeMs: serverTimeMs,
		Tick:         world.Tick(),
	}

	for _, entity := range world.GetEntitiesWith("player", "position") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		ps := PlayerSnapshot{Eid: ctx.wireEid(entity.ID), X: pos.X, Y: pos.Y}
		ps.LastProcessedSeq = ctx.LastProcessedSeq[entity.ID]

		if vel := entity.GetVelocity(); vel != nil {
			ps.VX, ps.VY = vel.VX, vel.VY
		}
		if zc, ok := entity.GetComponent("zposition"); ok {
			z := zc.(*engine.ZPositionComponent)
			ps.Z, ps.ZVelocity = z.Z, z.ZVelocity
		}
		if pc, ok := entity.GetComponent("player"); ok {
			p := pc.(*engine.PlayerComponent)
			ps.AimAngle = p.AimAngle
			ps.Slot = int32(p.Slot)
			if p.RollButtonWasDown {
				ps.Flags |= FlagRollEdge
			}
			if p.JumpButtonWasDown {
				ps.Flags |= FlagJumpEdge
			}
		}
		if sc, ok := entity.GetComponent("player_state"); ok {
			ps.State = uint8(sc.(*engine.PlayerStateComponent).Kind)
		}
		if hc := entity.GetHealth(); hc != nil {
			ps.HP, ps.MaxHP = hc.Current, hc.Max
			if hc.Current <= 0 {
				ps.Flags |= FlagDead
			}
			if hc.Iframes > 0 {
				ps.Flags |= FlagInvincible
			}
		}
		if cc, ok := entity.GetComponent("cylinder"); ok {
			ps.Rounds = int32(cc.(*engine.CylinderComponent).Rounds)
		}
		if rc, ok := entity.GetComponent("roll"); ok {
			roll := rc.(*engine.RollComponent)
			ps.RollElapsedMs = uint16(roll.Elapsed * 1000)
			ps.RollDurationMs = uint16(roll.Duration * 1000)
			ps.RollDirX, ps.RollDirY = roll.DirX, roll.DirY
		}
		if sd, ok := entity.GetComponent("showdown"); ok {
			showdown := sd.(*engine.ShowdownComponent)
			ps.ShowdownActive = showdown.Active
			ps.ShowdownTargetEid = ctx.wireEid(showdown.TargetEid)
		}

		snapshot.Players = append(snapshot.Players, ps)
	}

	for _, entity := range world.GetEntitiesWith("bullet", "position") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		bs := BulletSnapshot{Eid: entity.ID, X: pos.X, Y: pos.Y}
		if vel := entity.GetVelocity(); vel != nil {
			bs.VX, bs.VY = vel.VX, vel.VY
		}
		if bc, ok := entity.GetComponent("bullet"); ok {
			bs.OwnerEid = ctx.wireEid(bc.(*engine.BulletComponent).OwnerID)
		}
		if cc, ok := entity.GetComponent("circle_collider"); ok {
			bs.Layer = cc.(*engine.CircleColliderComponent).Layer
		}
		snapshot.Bullets = append(snapshot.Bullets, bs)
	}

	for _, entity := range world.GetEntitiesWith("enemy", "position") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		es := EnemySnapshot{Eid: entity.ID, X: pos.X, Y: pos.Y}
		if hc := entity.GetHealth(); hc != nil {
			es.HP, es.MaxHP = hc.Current, hc.Max
		}
		if ec, ok := entity.GetComponent("enemy"); ok {
			e := ec.(*engine.EnemyComponent)
			es.EnemyType = e.EnemyType
			es.Tier = uint8(e.Tier)
		}
		if ac, ok := entity.GetComponent("enemy_ai"); ok {
			ai := ac.(*engine.EnemyAIComponent)
			es.AiState = ai.State
			es.TargetEid = ctx.wireEid(ai.TargetEid)
		}
		snapshot.Enemies = append(snapshot.Enemies, es)
	}

	return snapshot
}
