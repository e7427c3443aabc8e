// Package engine provides combat-related components.
// This file defines the health, melee-attack, and death components shared
// by the server simulation and the client's snapshot ingestion.
package engine

import "github.com/hollowtick/skirmish/pkg/combat"

// HealthComponent tracks an entity's health and maximum health.
//
// Iframes/IframeDuration support server-authoritative invincibility windows
// after a hit: the ingestor refreshes Iframes to IframeDuration whenever
// authoritative HP drops, and local systems tick Iframes down to 0.
type HealthComponent struct {
	Current float64
	Max     float64

	Iframes        float64
	IframeDuration float64
}

// Type returns the component type identifier.
func (h *HealthComponent) Type() string {
	return "health"
}

// IsAlive returns true if the entity has health remaining.
func (h *HealthComponent) IsAlive() bool {
	return h.Current > 0
}

// IsDead returns true if the entity has no health remaining.
func (h *HealthComponent) IsDead() bool {
	return h.Current <= 0
}

// Heal increases health by the given amount, capped at max health.
func (h *HealthComponent) Heal(amount float64) {
	h.Current += amount
	if h.Current > h.Max {
		h.Current = h.Max
	}
}

// TakeDamage reduces health by the given amount, minimum 0.
func (h *HealthComponent) TakeDamage(amount float64) {
	h.Current -= amount
	if h.Current < 0 {
		h.Current = 0
	}
}

// AttackComponent is the melee-weapon counterpart to WeaponComponent:
// characters without a cylinder carry one of these instead, and the melee
// swing resolves damage directly rather than spawning a bullet entity.
type AttackComponent struct {
	Damage float64

	DamageType combat.DamageType

	// Attack range (for melee/ranged)
	Range float64

	// Attack cooldown in seconds
	Cooldown float64

	// Time until next attack is ready
	CooldownTimer float64
}

// Type returns the component type identifier.
func (a *AttackComponent) Type() string {
	return "attack"
}

// CanAttack returns true if the attack is ready (cooldown expired).
func (a *AttackComponent) CanAttack() bool {
	return a.CooldownTimer <= 0
}

// ResetCooldown resets the cooldown timer.
func (a *AttackComponent) ResetCooldown() {
	a.CooldownTimer = a.Cooldown
}

// UpdateCooldown updates the cooldown timer by the given delta time.
func (a *AttackComponent) UpdateCooldown(deltaTime float64) {
	if a.CooldownTimer > 0 {
		a.CooldownTimer -= deltaTime
		if a.CooldownTimer < 0 {
			a.CooldownTimer = 0
		}
	}
}

// ResistanceComponent carries an entity's damage-resistance table; the
// server's hit resolution routes every bullet and melee hit through it.
type ResistanceComponent struct {
	Values combat.Resistances
}

// Type returns the component type identifier.
func (r *ResistanceComponent) Type() string {
	return "resistance"
}

// DeadComponent marks an entity as dead. The snapshot ingestor adds and
// removes it from the authoritative dead flag; local systems treat its
// presence as "skip this entity".
type DeadComponent struct {
	// TimeOfDeath records when the entity died (game time in seconds)
	TimeOfDeath float64
}

// Type returns the component type identifier.
func (d *DeadComponent) Type() string {
	return "dead"
}
