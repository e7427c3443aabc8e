// Package engine provides the twin-stick-shooter gameplay components shared
// by client prediction, server simulation, and snapshot ingestion.
// This file defines the component set a netcode-synchronized entity is
// built from: aim/roll/jump/showdown state, ranged weapons, and the
// circle-collider geometry bullets and enemies use.
package engine

// Character ids, matching the roster/game-config wire values. The
// gunslinger carries the revolver (WeaponComponent + CylinderComponent);
// the brawler fights with a melee weapon (AttackComponent) instead.
const (
	CharacterGunslinger uint8 = iota
	CharacterBrawler
)

// CharacterIsMelee reports whether the character fights with a melee
// weapon rather than the revolver.
func CharacterIsMelee(characterID uint8) bool {
	return characterID == CharacterBrawler
}

// PlayerStateKind enumerates the player's current locomotion/animation state.
type PlayerStateKind uint8

const (
	PlayerIdle PlayerStateKind = iota
	PlayerMoving
	PlayerRolling
	PlayerJumping
	PlayerLanding
)

// ZPositionComponent tracks vertical displacement for jump arcs.
type ZPositionComponent struct {
	Z, ZVelocity float64
}

// Type returns the component type identifier.
func (z *ZPositionComponent) Type() string { return "zposition" }

// PlayerComponent holds per-tick input-edge bookkeeping for a player entity.
// The *WasDown fields let systems detect button edges without needing the
// previous tick's raw input alongside the current one.
type PlayerComponent struct {
	AimAngle float64
	Slot     int

	ShootWasDown      bool
	RollButtonWasDown bool
	JumpButtonWasDown bool
	AbilityWasDown    bool
}

// Type returns the component type identifier.
func (p *PlayerComponent) Type() string { return "player" }

// PlayerStateComponent tracks the player's current locomotion state.
type PlayerStateComponent struct {
	Kind PlayerStateKind
}

// Type returns the component type identifier.
func (p *PlayerStateComponent) Type() string { return "player_state" }

// SpeedComponent caps an entity's movement speed.
type SpeedComponent struct {
	Current, Max float64
}

// Type returns the component type identifier.
func (s *SpeedComponent) Type() string { return "speed" }

// Collision layers for CircleColliderComponent.Layer.
const (
	LayerNone uint8 = iota
	LayerPlayer
	LayerPlayerBullet
	LayerEnemy
	LayerEnemyBullet
	LayerWall
)

// CircleColliderComponent is the circle-geometry collider used by players,
// bullets, and enemies. The netcode domain's collision shapes and its
// PLAYER_BULLET/enemy layer filtering are circle-based, matching the wire
// protocol's BulletSnapshot and EnemySnapshot layer/collision semantics.
type CircleColliderComponent struct {
	Radius float64
	Layer  uint8
}

// Type returns the component type identifier.
func (c *CircleColliderComponent) Type() string { return "circle_collider" }

// CylinderComponent models a revolver-style ranged weapon's ammo/reload state.
type CylinderComponent struct {
	Rounds    int
	MaxRounds int

	ReloadTimer float64
	ReloadTime  float64

	FireCooldown float64

	Reloading            bool
	FirstShotAfterReload bool
}

// Type returns the component type identifier.
func (c *CylinderComponent) Type() string { return "cylinder" }

// WeaponComponent describes a ranged weapon's ballistics.
type WeaponComponent struct {
	BulletSpeed  float64
	BulletDamage float64
	Range        float64
	FireRate     float64
	Cooldown     float64
}

// Type returns the component type identifier.
func (w *WeaponComponent) Type() string { return "weapon" }

// BulletComponent marks an entity as a projectile and tracks its lifetime.
type BulletComponent struct {
	OwnerID          uint64
	Damage           float64
	Lifetime         float64
	DistanceTraveled float64
	Range            float64
}

// Type returns the component type identifier.
func (b *BulletComponent) Type() string { return "bullet" }

// EnemyTier classifies an enemy's relative toughness.
type EnemyTier uint8

const (
	TierFodder EnemyTier = iota
	TierElite
	TierBoss
)

// EnemyComponent identifies an entity as an enemy and its archetype.
type EnemyComponent struct {
	EnemyType uint8
	Tier      EnemyTier
}

// Type returns the component type identifier.
func (e *EnemyComponent) Type() string { return "enemy" }

// EnemyAIComponent tracks an enemy's AI state machine.
type EnemyAIComponent struct {
	State        uint8
	TargetEid    uint64
	StateTimer   float64
	InitialDelay float64
}

// Type returns the component type identifier.
func (e *EnemyAIComponent) Type() string { return "enemy_ai" }

// RollComponent is present while a player is mid-dodge-roll.
type RollComponent struct {
	Elapsed, Duration float64
	DirX, DirY        float64
}

// Type returns the component type identifier.
func (r *RollComponent) Type() string { return "roll" }

// JumpComponent tracks a player's jump/landing state.
type JumpComponent struct {
	Landed       bool
	LandingTimer float64
	BufferTimer  float64
}

// Type returns the component type identifier.
func (j *JumpComponent) Type() string { return "jump" }

// ShowdownComponent tracks an active high-noon standoff ability.
type ShowdownComponent struct {
	Active    bool
	TargetEid uint64
	Duration  float64
	Cooldown  float64
}

// Type returns the component type identifier.
func (s *ShowdownComponent) Type() string { return "showdown" }

// Dead entities use the DeadComponent defined in combat_components.go; a
// zero-value &DeadComponent{} is a valid dead tag, e.g. for the netcode
// ingestor's snapshot-driven death tagging.

// InvincibleComponent is a tag marking an entity as currently invincible.
type InvincibleComponent struct{}

// Type returns the component type identifier.
func (i *InvincibleComponent) Type() string { return "invincible" }

// KnockbackComponent applies a transient forced-velocity impulse.
type KnockbackComponent struct {
	VX, VY   float64
	Duration float64
}

// Type returns the component type identifier.
func (k *KnockbackComponent) Type() string { return "knockback" }
