// Package engine provides the authoritative entity construction shared by
// every skirmish server (the standalone cmd/server binary and the
// in-process embedded server started by pkg/hostplay's --host-and-play
// mode): a freshly joined player's component set and the WeaponFireSystem
// bullet-spawn hook, so both hosts build identical entities instead of
// maintaining two copies of the same stat block.
package engine

import (
	"math"

	"github.com/hollowtick/skirmish/pkg/combat"
)

// NewSkirmishPlayerEntity builds a freshly joined player's authoritative
// entity at (x, y): the shared locomotion/health/collider set plus the
// character's weapon kit - a six-round revolver for the gunslinger, a
// melee weapon for the brawler.
func NewSkirmishPlayerEntity(world *World, eid uint64, characterID uint8, x, y float64) *Entity {
	entity := world.CreateEntity()

	entity.AddComponent(&PositionComponent{X: x, Y: y, PrevX: x, PrevY: y})
	entity.AddComponent(&VelocityComponent{})
	entity.AddComponent(&PlayerComponent{Slot: int(eid % 8)})
	entity.AddComponent(&PlayerStateComponent{Kind: PlayerIdle})
	entity.AddComponent(&ZPositionComponent{})
	entity.AddComponent(&ShowdownComponent{})
	entity.AddComponent(&SpeedComponent{Current: 160, Max: 160})
	entity.AddComponent(&HealthComponent{Current: 100, Max: 100, IframeDuration: 0.5})
	entity.AddComponent(&CircleColliderComponent{Radius: 16, Layer: LayerPlayer})

	if CharacterIsMelee(characterID) {
		entity.AddComponent(&AttackComponent{
			Damage:     30,
			DamageType: combat.DamagePhysical,
			Range:      56,
			Cooldown:   0.45,
		})
	} else {
		entity.AddComponent(&CylinderComponent{Rounds: 6, MaxRounds: 6, ReloadTime: 1.4})
		entity.AddComponent(&WeaponComponent{
			BulletSpeed:  480,
			BulletDamage: 18,
			Range:        520,
			FireRate:     0.35,
			Cooldown:     0.35,
		})
	}

	return entity
}

// NewSkirmishBulletEntity builds the bullet entity a WeaponFireSystem fire
// event spawns from owner, reading speed/damage/range off owner's
// WeaponComponent. Returns the created entity so a client-side caller can
// hand it to netcode.PredictedEntityTracker.TrackNewBullet; the
// authoritative server has no such tracking step and uses SpawnSkirmishBullet
// instead, which discards the return value.
func NewSkirmishBulletEntity(world *World, owner *Entity, angle float64) *Entity {
	pos := owner.GetPosition()
	if pos == nil {
		return nil
	}

	speed, damage, rang := 480.0, 18.0, 520.0
	if wc, ok := owner.GetComponent("weapon"); ok {
		w := wc.(*WeaponComponent)
		speed, damage, rang = w.BulletSpeed, w.BulletDamage, w.Range
	}

	bullet := world.CreateEntity()
	bullet.AddComponent(&PositionComponent{X: pos.X, Y: pos.Y})
	bullet.AddComponent(&VelocityComponent{VX: math.Cos(angle) * speed, VY: math.Sin(angle) * speed})
	bullet.AddComponent(&CircleColliderComponent{Radius: 4, Layer: LayerPlayerBullet})
	bullet.AddComponent(&BulletComponent{OwnerID: owner.ID, Damage: damage, Range: rang})
	return bullet
}

// SpawnSkirmishBullet is the authoritative WeaponFireSystem.SpawnBullet
// hook: it creates a real bullet entity directly, since an authoritative
// host has no predicted-entity adoption step to reconcile against (that is
// a client concept, handled by netcode.PredictedEntityTracker).
func SpawnSkirmishBullet(world *World, owner *Entity, angle float64) {
	NewSkirmishBulletEntity(world, owner, angle)
}

// enemyArchetype keys an enemy type byte to its collider/health defaults
// and, for the armored types, a damage-resistance table.
type enemyArchetype struct {
	radius  float64
	hp      float64
	resists combat.Resistances
}

var enemyArchetypes = map[uint8]enemyArchetype{
	0: {radius: 14, hp: 30},  // rusher
	1: {radius: 12, hp: 20},  // skitterer
	2: {radius: 18, hp: 60, resists: combat.Resistances{combat.DamageBleed: 0.5}},    // bruiser
	3: {radius: 24, hp: 140, resists: combat.Resistances{combat.DamagePhysical: 0.25}}, // siege
}

// NewSkirmishEnemyEntity builds an enemy entity from its type's archetype
// defaults. An unrecognised type byte falls back to conservative defaults
// (small radius, minimal health) rather than failing: the client must be
// able to represent whatever a newer server sends.
func NewSkirmishEnemyEntity(world *World, enemyType uint8, tier EnemyTier, x, y float64) *Entity {
	arch, ok := enemyArchetypes[enemyType]
	if !ok {
		arch = enemyArchetype{radius: 10, hp: 1}
	}

	entity := world.CreateEntity()
	entity.AddComponent(&PositionComponent{X: x, Y: y, PrevX: x, PrevY: y})
	entity.AddComponent(&VelocityComponent{})
	entity.AddComponent(&EnemyComponent{EnemyType: enemyType, Tier: tier})
	entity.AddComponent(&EnemyAIComponent{})
	entity.AddComponent(&HealthComponent{Current: arch.hp, Max: arch.hp})
	entity.AddComponent(&CircleColliderComponent{Radius: arch.radius, Layer: LayerEnemy})
	if len(arch.resists) > 0 {
		entity.AddComponent(&ResistanceComponent{Values: arch.resists})
	}
	return entity
}
