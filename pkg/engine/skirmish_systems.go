// Package engine provides the concrete PREDICTION and REPLAY systems for
// the twin-stick-shooter domain. The netcode core only requires that a
// system registry exist and expose deterministic step/replay entry points
// (see SystemRegistry, FullWorldDriver, LocalPlayerDriver); the gameplay
// rules below are one concrete, reusable implementation of that contract,
// every system restricted to obey SimulationScope.
package engine

import (
	"math"

	"github.com/hollowtick/skirmish/pkg/combat"
)

// GameEvent is a single presentation-facing gameplay event. The core netcode
// packages never construct these directly; prediction systems push them
// through a GameplayEventSink so replay (which reruns only the REPLAY set)
// never re-emits them.
type GameEvent struct {
	Kind     string
	EntityID uint64
	Data     map[string]any
}

// GameplayEventSink receives gameplay events for presentation. The core
// only pushes player-hit, level-up, incompatible-protocol, and disconnect;
// everything else (fire, reload-*, dry-fire, showdown-*, melee-swing)
// originates from these gameplay systems.
type GameplayEventSink interface {
	Push(event GameEvent)
}

// scopedEntities returns the entities a system should touch under the
// world's current scope: every matching entity under FullScope, or just
// the scoped local player's entity under LocalPlayer scope. This is how
// every PREDICTION/REPLAY system below honors "prediction must not mutate
// remote entities" without each system re-deriving the check.
func scopedEntities(world *World, componentTypes ...string) []*Entity {
	if world.Scope().IsFull() {
		return world.GetEntitiesWith(componentTypes...)
	}

	eid, _ := world.Scope().LocalEid()
	entity, ok := world.GetEntity(eid)
	if !ok {
		return nil
	}
	for _, ct := range componentTypes {
		if !entity.HasComponent(ct) {
			return nil
		}
	}
	return []*Entity{entity}
}

const (
	ButtonMoveUp uint16 = 1 << iota
	ButtonMoveDown
	ButtonMoveLeft
	ButtonMoveRight
	ButtonShoot
	ButtonRoll
	ButtonReload
	ButtonAbility
	ButtonJump
	ButtonDebugSpawn
)

// InputVelocitySystem converts this tick's TickInput move axes into
// Velocity, scaled by SpeedComponent. Registered in both PREDICTION and
// REPLAY: replay must reproduce the same movement the original prediction
// did, from the same (pendingInput, pre-state) pairs.
type InputVelocitySystem struct{}

func (s *InputVelocitySystem) Name() string { return "input_velocity" }

func (s *InputVelocitySystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "position", "velocity", "player") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		vel := entity.GetVelocity()
		speed := 100.0
		if sc, ok := entity.GetComponent("speed"); ok {
			speed = sc.(*SpeedComponent).Current
		}

		vel.VX = input.MoveX * speed
		vel.VY = input.MoveY * speed

		if player, ok := entity.GetComponent("player"); ok {
			p := player.(*PlayerComponent)
			p.AimAngle = input.AimAngle
		}
	}
}

// PositionIntegrationSystem applies Velocity to Position. Registered in
// both PREDICTION and REPLAY for the same reason as InputVelocitySystem.
type PositionIntegrationSystem struct{}

func (s *PositionIntegrationSystem) Name() string { return "position_integration" }

func (s *PositionIntegrationSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "position", "velocity") {
		pos := entity.GetPosition()
		vel := entity.GetVelocity()
		pos.X += vel.VX * dt
		pos.Y += vel.VY * dt
	}
}

// ScopedCollisionSystem resolves simple circle-circle overlap for the
// scoped entity set: each scoped LayerPlayer entity is pushed out of every
// LayerWall CircleColliderComponent entity in the world. Other layers are
// not resolved. Under LocalPlayer scope it still reads (but never writes) other
// entities' colliders to push the local player out of solid obstacles —
// this is read-only consultation of remote state, not mutation of it, and
// matches the prediction set's "must not mutate remote entities" rule.
type ScopedCollisionSystem struct{}

func (s *ScopedCollisionSystem) Name() string { return "collision" }

func (s *ScopedCollisionSystem) Step(world *World, dt float64) {
	moving := scopedEntities(world, "position", "circle_collider")
	if len(moving) == 0 {
		return
	}

	all := world.GetEntitiesWith("position", "circle_collider")
	for _, entity := range moving {
		pos := entity.GetPosition()
		collider := entity.GetComponent
		cc, _ := collider("circle_collider")
		selfCollider := cc.(*CircleColliderComponent)
		if selfCollider.Layer != LayerPlayer {
			continue
		}

		for _, other := range all {
			if other.ID == entity.ID {
				continue
			}
			otherCC, _ := other.GetComponent("circle_collider")
			oc := otherCC.(*CircleColliderComponent)
			if oc.Layer != LayerWall {
				continue
			}
			otherPos := other.GetPosition()
			dx := pos.X - otherPos.X
			dy := pos.Y - otherPos.Y
			dist := math.Hypot(dx, dy)
			minDist := selfCollider.Radius + oc.Radius
			if dist > 0 && dist < minDist {
				push := (minDist - dist) / dist
				pos.X += dx * push
				pos.Y += dy * push
			}
		}
	}
}

// WeaponFireSystem implements cylinder reload and shoot-button handling for
// a ranged weapon, pushing fire/dry-fire/reload-start/reload-complete
// presentation events. It is PREDICTION-only: replay must not re-emit
// these, which is guaranteed simply by WeaponFireSystem never being
// registered under SetReplay.
type WeaponFireSystem struct {
	Events      GameplayEventSink
	SpawnBullet func(world *World, owner *Entity, angle float64)
}

func (s *WeaponFireSystem) Name() string { return "weapon_fire" }

func (s *WeaponFireSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "player", "cylinder", "weapon") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		player := entity.GetComponent
		pc, _ := player("player")
		p := pc.(*PlayerComponent)
		cylComp, _ := player("cylinder")
		cyl := cylComp.(*CylinderComponent)

		if cyl.FireCooldown > 0 {
			cyl.FireCooldown -= dt
		}
		if cyl.Reloading {
			cyl.ReloadTimer -= dt
			if cyl.ReloadTimer <= 0 {
				cyl.Reloading = false
				cyl.Rounds = cyl.MaxRounds
				cyl.FirstShotAfterReload = true
				s.emit(entity.ID, "reload-complete", nil)
			}
		}

		shootDown := input.Buttons&ButtonShoot != 0
		shootEdge := shootDown && !p.ShootWasDown
		p.ShootWasDown = shootDown

		reloadDown := input.Buttons&ButtonReload != 0
		if reloadDown && !cyl.Reloading && cyl.Rounds < cyl.MaxRounds {
			cyl.Reloading = true
			cyl.ReloadTimer = cyl.ReloadTime
			s.emit(entity.ID, "reload-start", nil)
		}

		if shootEdge {
			if cyl.Reloading || cyl.FireCooldown > 0 {
				s.emit(entity.ID, "dry-fire", nil)
				continue
			}
			if cyl.Rounds <= 0 {
				s.emit(entity.ID, "dry-fire", nil)
				continue
			}

			cyl.Rounds--
			weaponComp, _ := player("weapon")
			weapon := weaponComp.(*WeaponComponent)
			cyl.FireCooldown = weapon.Cooldown
			if s.SpawnBullet != nil {
				s.SpawnBullet(world, entity, p.AimAngle)
			}
			s.emit(entity.ID, "fire", map[string]any{"angle": p.AimAngle})
		}
	}
}

func (s *WeaponFireSystem) emit(eid uint64, kind string, data map[string]any) {
	if s.Events == nil {
		return
	}
	s.Events.Push(GameEvent{Kind: kind, EntityID: eid, Data: data})
}

// RollSystem adds/removes RollComponent on the ROLL button edge.
// PREDICTION-only.
type RollSystem struct {
	RollDuration float64
}

func (s *RollSystem) Name() string { return "roll" }

func (s *RollSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "player", "player_state") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		pc, _ := entity.GetComponent("player")
		p := pc.(*PlayerComponent)
		stateComp, _ := entity.GetComponent("player_state")
		state := stateComp.(*PlayerStateComponent)

		if rollComp, rolling := entity.GetComponent("roll"); rolling {
			roll := rollComp.(*RollComponent)
			roll.Elapsed += dt
			if roll.Elapsed >= roll.Duration {
				entity.RemoveComponent("roll")
				state.Kind = PlayerIdle
			}
			p.RollButtonWasDown = input.Buttons&ButtonRoll != 0
			continue
		}

		rollDown := input.Buttons&ButtonRoll != 0
		rollEdge := rollDown && !p.RollButtonWasDown
		p.RollButtonWasDown = rollDown

		if rollEdge && state.Kind != PlayerRolling {
			dirX, dirY := input.MoveX, input.MoveY
			if dirX == 0 && dirY == 0 {
				dirX, dirY = math.Cos(p.AimAngle), math.Sin(p.AimAngle)
			}
			norm := math.Hypot(dirX, dirY)
			if norm > 0 {
				dirX, dirY = dirX/norm, dirY/norm
			}
			entity.AddComponent(&RollComponent{Duration: s.RollDuration, DirX: dirX, DirY: dirY})
			state.Kind = PlayerRolling
		}
	}
}

// JumpLandingDuration is the fixed landing recovery window after a jump.
const JumpLandingDuration = 0.25

// JumpSystem handles the JUMP button edge, jump arc, and landing recovery.
// PREDICTION-only.
type JumpSystem struct {
	JumpVelocity float64
	Gravity      float64
}

func (s *JumpSystem) Name() string { return "jump" }

func (s *JumpSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "player", "player_state", "zposition") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		pc, _ := entity.GetComponent("player")
		p := pc.(*PlayerComponent)
		stateComp, _ := entity.GetComponent("player_state")
		state := stateComp.(*PlayerStateComponent)
		zc, _ := entity.GetComponent("zposition")
		z := zc.(*ZPositionComponent)

		jumpDown := input.Buttons&ButtonJump != 0
		jumpEdge := jumpDown && !p.JumpButtonWasDown
		p.JumpButtonWasDown = jumpDown

		if jumpComp, jumping := entity.GetComponent("jump"); jumping {
			j := jumpComp.(*JumpComponent)
			if j.Landed {
				j.LandingTimer -= dt
				if j.LandingTimer <= 0 {
					entity.RemoveComponent("jump")
					state.Kind = PlayerIdle
				}
				continue
			}

			z.ZVelocity -= s.Gravity * dt
			z.Z += z.ZVelocity * dt
			if z.Z <= 0 {
				z.Z = 0
				z.ZVelocity = 0
				j.Landed = true
				j.LandingTimer = JumpLandingDuration
				state.Kind = PlayerLanding
			}
			continue
		}

		if jumpEdge && state.Kind != PlayerRolling {
			z.ZVelocity = s.JumpVelocity
			entity.AddComponent(&JumpComponent{})
			state.Kind = PlayerJumping
		}
	}
}

// KnockbackSystem applies and decays a transient forced-velocity impulse.
// PREDICTION-only (the server applies the same impulse authoritatively;
// the client predicts it locally from the hit event that caused it).
type KnockbackSystem struct{}

func (s *KnockbackSystem) Name() string { return "knockback" }

func (s *KnockbackSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "position", "knockback") {
		kc, _ := entity.GetComponent("knockback")
		k := kc.(*KnockbackComponent)
		pos := entity.GetPosition()
		pos.X += k.VX * dt
		pos.Y += k.VY * dt
		k.Duration -= dt
		if k.Duration <= 0 {
			entity.RemoveComponent("knockback")
		}
	}
}

// AbilitySystem handles the ABILITY button edge for the showdown ability:
// activating a standoff against the aimed-at target, expiring it on
// timeout, and emitting showdown-activate/expire/kill events.
// PREDICTION-only.
type AbilitySystem struct {
	Events GameplayEventSink
}

func (s *AbilitySystem) Name() string { return "ability" }

func (s *AbilitySystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "player", "showdown") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		pc, _ := entity.GetComponent("player")
		p := pc.(*PlayerComponent)
		sc, _ := entity.GetComponent("showdown")
		sd := sc.(*ShowdownComponent)

		if sd.Cooldown > 0 {
			sd.Cooldown -= dt
		}

		abilityDown := input.Buttons&ButtonAbility != 0
		abilityEdge := abilityDown && !p.AbilityWasDown
		p.AbilityWasDown = abilityDown

		if sd.Active {
			sd.Duration -= dt
			if sd.Duration <= 0 {
				sd.Active = false
				sd.Cooldown = 5
				s.emit(entity.ID, "showdown-expire", nil)
			}
			continue
		}

		if abilityEdge && sd.Cooldown <= 0 {
			sd.Active = true
			sd.Duration = 3
			s.emit(entity.ID, "showdown-activate", map[string]any{"target": sd.TargetEid})
		}
	}
}

func (s *AbilitySystem) emit(eid uint64, kind string, data map[string]any) {
	if s.Events == nil {
		return
	}
	s.Events.Push(GameEvent{Kind: kind, EntityID: eid, Data: data})
}

// IframeTickSystem counts down the post-hit invincibility window the
// ingestor and reconciler refresh when authoritative HP drops.
type IframeTickSystem struct{}

func (s *IframeTickSystem) Name() string { return "iframe_tick" }

func (s *IframeTickSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "health") {
		hc := entity.GetHealth()
		if hc.Iframes > 0 {
			hc.Iframes -= dt
			if hc.Iframes < 0 {
				hc.Iframes = 0
			}
		}
	}
}

// BulletFlightSystem advances bullets along their velocity and tracks the
// distance each has covered. Under LocalPlayer scope it advances only the
// scoped player's own bullets (the local-timeline set); remote bullets are
// positioned by interpolation, not simulation. Under Full scope the
// authoritative server also retires bullets that have flown past their
// weapon's range.
type BulletFlightSystem struct{}

func (s *BulletFlightSystem) Name() string { return "bullet_flight" }

func (s *BulletFlightSystem) Step(world *World, dt float64) {
	full := world.Scope().IsFull()
	localEid, _ := world.Scope().LocalEid()

	for _, entity := range world.GetEntitiesWith("position", "velocity", "bullet") {
		bc, _ := entity.GetComponent("bullet")
		bullet := bc.(*BulletComponent)

		if !full && bullet.OwnerID != localEid {
			continue
		}

		pos := entity.GetPosition()
		vel := entity.GetVelocity()
		pos.X += vel.VX * dt
		pos.Y += vel.VY * dt

		step := math.Hypot(vel.VX, vel.VY) * dt
		bullet.DistanceTraveled += step
		bullet.Lifetime += dt

		if full && bullet.Range > 0 && bullet.DistanceTraveled > bullet.Range {
			world.RemoveEntity(entity.ID)
		}
	}
}

// BulletImpactSystem resolves player-bullet hits against enemies on the
// authoritative server: it rebuilds the shared SpatialHash once per tick
// and queries it per bullet. It does nothing under LocalPlayer scope - the
// client never predicts enemy damage beyond the optimistic-HP display rule,
// and prediction must not rebuild the hash.
type BulletImpactSystem struct {
	Hash   *SpatialHash
	Events GameplayEventSink
}

func (s *BulletImpactSystem) Name() string { return "bullet_impact" }

func (s *BulletImpactSystem) Step(world *World, dt float64) {
	if !world.Scope().IsFull() {
		return
	}

	s.Hash.Rebuild(world.GetEntitiesWith("position", "circle_collider", "enemy", "health"))

	for _, entity := range world.GetEntitiesWith("position", "circle_collider", "bullet") {
		cc, _ := entity.GetComponent("circle_collider")
		collider := cc.(*CircleColliderComponent)
		if collider.Layer != LayerPlayerBullet {
			continue
		}
		pos := entity.GetPosition()
		bc, _ := entity.GetComponent("bullet")
		bullet := bc.(*BulletComponent)

		// Query with headroom for the largest enemy collider, then check
		// the exact pair radius.
		const maxEnemyRadius = 32
		hit := false
		s.Hash.ForEachInRadius(pos.X, pos.Y, collider.Radius+maxEnemyRadius, func(enemy *Entity) {
			if hit {
				return
			}
			enemyCollider := enemy.GetCircleCollider()
			enemyPos := enemy.GetPosition()
			if enemyCollider == nil || enemyPos == nil {
				return
			}
			dist := math.Hypot(pos.X-enemyPos.X, pos.Y-enemyPos.Y)
			if dist > collider.Radius+enemyCollider.Radius {
				return
			}

			hit = true
			damageEnemy(world, enemy, combat.Damage{
				Amount:   bullet.Damage,
				Type:     combat.DamagePhysical,
				SourceID: bullet.OwnerID,
				TargetID: enemy.ID,
			}, s.Events)
		})
		if hit {
			world.RemoveEntity(entity.ID)
		}
	}
}

// damageEnemy applies a hit through the enemy's resistance table, removing
// the enemy and emitting enemy-killed on a kill.
func damageEnemy(world *World, enemy *Entity, damage combat.Damage, events GameplayEventSink) {
	hc := enemy.GetHealth()
	if hc == nil {
		return
	}
	hc.TakeDamage(enemyResistances(enemy).Mitigate(damage))
	if hc.IsDead() {
		world.RemoveEntity(enemy.ID)
		if events != nil {
			events.Push(GameEvent{Kind: "enemy-killed", EntityID: damage.SourceID, Data: map[string]any{"enemy": enemy.ID}})
		}
	}
}

// enemyResistances returns the enemy's resistance table; nil (no
// mitigation) when absent.
func enemyResistances(enemy *Entity) combat.Resistances {
	if rc, ok := enemy.GetComponent("resistance"); ok {
		return rc.(*ResistanceComponent).Values
	}
	return nil
}

// meleeArcCos bounds the swing to a 120° arc in front of the attacker.
const meleeArcCos = 0.5 // cos(60°)

// MeleeAttackSystem is the brawler's counterpart to WeaponFireSystem: on
// the shoot-button edge it swings the melee weapon, emitting a melee-swing
// presentation event at prediction time and - under Full scope only -
// resolving damage against every enemy inside the swing arc through the
// shared SpatialHash. Registered in PREDICTION and ALL, never REPLAY, so
// reconciliation cannot re-emit the swing.
type MeleeAttackSystem struct {
	Hash   *SpatialHash
	Events GameplayEventSink
}

func (s *MeleeAttackSystem) Name() string { return "melee_attack" }

func (s *MeleeAttackSystem) Step(world *World, dt float64) {
	for _, entity := range scopedEntities(world, "player", "attack") {
		input, ok := world.PlayerInput(entity.ID)
		if !ok {
			continue
		}

		atk := entity.GetAttack()
		atk.UpdateCooldown(dt)

		pc, _ := entity.GetComponent("player")
		p := pc.(*PlayerComponent)
		shootDown := input.Buttons&ButtonShoot != 0
		shootEdge := shootDown && !p.ShootWasDown
		p.ShootWasDown = shootDown

		if !shootEdge || !atk.CanAttack() {
			continue
		}
		atk.ResetCooldown()
		if s.Events != nil {
			s.Events.Push(GameEvent{Kind: "melee-swing", EntityID: entity.ID, Data: map[string]any{"angle": p.AimAngle}})
		}

		// The authoritative pass resolves the hit; the client only
		// predicts the swing itself.
		if !world.Scope().IsFull() {
			continue
		}
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}

		// Swings are sporadic, so the index is rebuilt on demand rather
		// than every tick the way the bullet pass does.
		s.Hash.Rebuild(world.GetEntitiesWith("position", "circle_collider", "enemy", "health"))

		aimX, aimY := math.Cos(p.AimAngle), math.Sin(p.AimAngle)
		const maxEnemyRadius = 32
		s.Hash.ForEachInRadius(pos.X, pos.Y, atk.Range+maxEnemyRadius, func(enemy *Entity) {
			enemyPos := enemy.GetPosition()
			enemyCollider := enemy.GetCircleCollider()
			if enemyPos == nil || enemyCollider == nil {
				return
			}
			dx, dy := enemyPos.X-pos.X, enemyPos.Y-pos.Y
			dist := math.Hypot(dx, dy)
			if dist > atk.Range+enemyCollider.Radius {
				return
			}
			// Point-blank targets are always in the arc.
			if dist > 0 && (dx*aimX+dy*aimY)/dist < meleeArcCos {
				return
			}
			damageEnemy(world, enemy, combat.Damage{
				Amount:   atk.Damage,
				Type:     atk.DamageType,
				SourceID: entity.ID,
				TargetID: enemy.ID,
			}, s.Events)
		})
	}
}

// RegisterSkirmishSystems wires the concrete PREDICTION and REPLAY sets
// described in §4.1: PREDICTION runs the full player-controlled pipeline,
// REPLAY runs movement-only systems. spawnBullet is invoked by
// WeaponFireSystem to create the predicted bullet entity; it is supplied
// by the caller (e.g. pkg/clientgame) because bullet entity construction also
// needs the predicted-entity tracker, which lives in pkg/netcode.
func RegisterSkirmishSystems(registry *SystemRegistry, events GameplayEventSink, spawnBullet func(world *World, owner *Entity, angle float64)) {
	inputVel := &InputVelocitySystem{}
	integrate := &PositionIntegrationSystem{}
	collision := &ScopedCollisionSystem{}
	fire := &WeaponFireSystem{Events: events, SpawnBullet: spawnBullet}
	roll := &RollSystem{RollDuration: 0.35}
	jump := &JumpSystem{JumpVelocity: 220, Gravity: 600}
	knockback := &KnockbackSystem{}
	ability := &AbilitySystem{Events: events}
	flight := &BulletFlightSystem{}
	hash := NewSpatialHash(4096, 4096)
	impact := &BulletImpactSystem{Hash: hash, Events: events}
	melee := &MeleeAttackSystem{Hash: hash, Events: events}
	iframes := &IframeTickSystem{}

	registry.Register(SetPrediction, inputVel.Name(), inputVel.Step)
	registry.Register(SetPrediction, fire.Name(), fire.Step)
	registry.Register(SetPrediction, melee.Name(), melee.Step)
	registry.Register(SetPrediction, roll.Name(), roll.Step)
	registry.Register(SetPrediction, jump.Name(), jump.Step)
	registry.Register(SetPrediction, knockback.Name(), knockback.Step)
	registry.Register(SetPrediction, ability.Name(), ability.Step)
	registry.Register(SetPrediction, collision.Name(), collision.Step)
	registry.Register(SetPrediction, integrate.Name(), integrate.Step)
	registry.Register(SetPrediction, flight.Name(), flight.Step)
	registry.Register(SetPrediction, iframes.Name(), iframes.Step)

	registry.Register(SetReplay, inputVel.Name(), inputVel.Step)
	registry.Register(SetReplay, collision.Name(), collision.Step)
	registry.Register(SetReplay, integrate.Name(), integrate.Step)

	registry.Register(SetAll, inputVel.Name(), inputVel.Step)
	registry.Register(SetAll, fire.Name(), fire.Step)
	registry.Register(SetAll, melee.Name(), melee.Step)
	registry.Register(SetAll, roll.Name(), roll.Step)
	registry.Register(SetAll, jump.Name(), jump.Step)
	registry.Register(SetAll, knockback.Name(), knockback.Step)
	registry.Register(SetAll, ability.Name(), ability.Step)
	registry.Register(SetAll, collision.Name(), collision.Step)
	registry.Register(SetAll, integrate.Name(), integrate.Step)
	registry.Register(SetAll, flight.Name(), flight.Step)
	registry.Register(SetAll, impact.Name(), impact.Step)
	registry.Register(SetAll, iframes.Name(), iframes.Step)
}
