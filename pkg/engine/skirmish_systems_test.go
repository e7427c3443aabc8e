package engine

import (
	"testing"

	"github.com/hollowtick/skirmish/pkg/combat"
)

func newMovingPlayer(world *World, x, y float64) *Entity {
	e := world.CreateEntity()
	e.AddComponent(&PositionComponent{X: x, Y: y})
	e.AddComponent(&VelocityComponent{})
	e.AddComponent(&PlayerComponent{})
	e.AddComponent(&PlayerStateComponent{Kind: PlayerIdle})
	e.AddComponent(&SpeedComponent{Current: 100, Max: 100})
	world.Update(0)
	return e
}

func TestInputVelocitySystemFullScope(t *testing.T) {
	world := NewWorld()
	player := newMovingPlayer(world, 0, 0)

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{MoveX: 1, MoveY: 0, AimAngle: 1.5})

	sys := &InputVelocitySystem{}
	sys.Step(world, 1.0/60.0)

	if player.GetVelocity().VX != 100 {
		t.Errorf("VX = %f, want 100", player.GetVelocity().VX)
	}
	pc, _ := player.GetComponent("player")
	if pc.(*PlayerComponent).AimAngle != 1.5 {
		t.Errorf("AimAngle not updated")
	}
}

func TestInputVelocitySystemLocalScopeIgnoresOthers(t *testing.T) {
	world := NewWorld()
	local := newMovingPlayer(world, 0, 0)
	other := newMovingPlayer(world, 10, 10)

	world.SetScope(LocalPlayerScope(local.ID))
	world.SetPlayerInput(local.ID, TickInput{MoveX: 1})
	world.SetPlayerInput(other.ID, TickInput{MoveX: 1})

	sys := &InputVelocitySystem{}
	sys.Step(world, 1.0/60.0)

	if local.GetVelocity().VX == 0 {
		t.Error("expected local player velocity to update")
	}
	if other.GetVelocity().VX != 0 {
		t.Error("LocalPlayer scope must not mutate other entities")
	}
}

func TestPositionIntegrationSystem(t *testing.T) {
	world := NewWorld()
	player := newMovingPlayer(world, 0, 0)
	player.GetVelocity().VX = 10
	player.GetVelocity().VY = 5

	world.SetScope(FullScope())
	sys := &PositionIntegrationSystem{}
	sys.Step(world, 2.0)

	pos := player.GetPosition()
	if pos.X != 20 || pos.Y != 10 {
		t.Errorf("position = (%f, %f), want (20, 10)", pos.X, pos.Y)
	}
}

func TestWeaponFireSystemDryFireWhenEmpty(t *testing.T) {
	world := NewWorld()
	player := world.CreateEntity()
	player.AddComponent(&PlayerComponent{})
	player.AddComponent(&CylinderComponent{Rounds: 0, MaxRounds: 6, ReloadTime: 1})
	player.AddComponent(&WeaponComponent{Cooldown: 0.2})
	world.Update(0)

	var events []GameEvent
	sink := sinkFunc(func(e GameEvent) { events = append(events, e) })

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot})

	sys := &WeaponFireSystem{Events: sink}
	sys.Step(world, 1.0/60.0)

	if len(events) != 1 || events[0].Kind != "dry-fire" {
		t.Fatalf("events = %+v, want single dry-fire", events)
	}
}

func TestWeaponFireSystemFiresAndCooldownBlocks(t *testing.T) {
	world := NewWorld()
	player := world.CreateEntity()
	player.AddComponent(&PlayerComponent{})
	player.AddComponent(&CylinderComponent{Rounds: 6, MaxRounds: 6, ReloadTime: 1})
	player.AddComponent(&WeaponComponent{Cooldown: 1})
	world.Update(0)

	var events []GameEvent
	sink := sinkFunc(func(e GameEvent) { events = append(events, e) })

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot})

	sys := &WeaponFireSystem{Events: sink}
	sys.Step(world, 1.0/60.0)

	if len(events) != 1 || events[0].Kind != "fire" {
		t.Fatalf("events = %+v, want single fire", events)
	}

	cyl, _ := player.GetComponent("cylinder")
	if cyl.(*CylinderComponent).Rounds != 5 {
		t.Errorf("Rounds = %d, want 5", cyl.(*CylinderComponent).Rounds)
	}

	// Shoot button still held: no edge, no second shot.
	events = nil
	sys.Step(world, 1.0/60.0)
	if len(events) != 0 {
		t.Errorf("held button fired again: %+v", events)
	}
}

func TestRollSystemCompletesAfterDuration(t *testing.T) {
	world := NewWorld()
	player := world.CreateEntity()
	player.AddComponent(&PlayerComponent{})
	player.AddComponent(&PlayerStateComponent{Kind: PlayerIdle})
	world.Update(0)

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonRoll, MoveX: 1})

	sys := &RollSystem{RollDuration: 0.1}
	sys.Step(world, 1.0/60.0)

	if !player.HasComponent("roll") {
		t.Fatal("expected roll component to be added on button edge")
	}

	sys.Step(world, 1.0) // exceed duration
	if player.HasComponent("roll") {
		t.Error("expected roll component removed after duration elapses")
	}
	state, _ := player.GetComponent("player_state")
	if state.(*PlayerStateComponent).Kind != PlayerIdle {
		t.Error("expected state to return to idle")
	}
}

func TestKnockbackSystemDecaysAndRemoves(t *testing.T) {
	world := NewWorld()
	e := world.CreateEntity()
	e.AddComponent(&PositionComponent{})
	e.AddComponent(&KnockbackComponent{VX: 10, Duration: 0.05})
	world.Update(0)

	world.SetScope(FullScope())
	sys := &KnockbackSystem{}
	sys.Step(world, 0.02)
	if !e.HasComponent("knockback") {
		t.Fatal("knockback removed too early")
	}
	sys.Step(world, 0.05)
	if e.HasComponent("knockback") {
		t.Error("knockback should be removed once duration elapses")
	}
}

func newTestBullet(world *World, ownerID uint64, x, y, vx float64) *Entity {
	e := world.CreateEntity()
	e.AddComponent(&PositionComponent{X: x, Y: y})
	e.AddComponent(&VelocityComponent{VX: vx})
	e.AddComponent(&CircleColliderComponent{Radius: 4, Layer: LayerPlayerBullet})
	e.AddComponent(&BulletComponent{OwnerID: ownerID, Damage: 18, Range: 100})
	world.Update(0)
	return e
}

func TestBulletFlightSystemAdvancesAndRetires(t *testing.T) {
	world := NewWorld()
	bullet := newTestBullet(world, 1, 0, 0, 100)

	world.SetScope(FullScope())
	sys := &BulletFlightSystem{}
	sys.Step(world, 0.5)

	pos := bullet.GetPosition()
	if pos.X != 50 {
		t.Errorf("bullet X = %f, want 50", pos.X)
	}

	// Another 0.6s pushes the travelled distance past the 100-unit range;
	// the authoritative pass retires it.
	sys.Step(world, 0.6)
	world.Update(0)
	if _, ok := world.GetEntity(bullet.ID); ok {
		t.Error("bullet past its range should be removed under full scope")
	}
}

func TestBulletFlightSystemLocalScopeAdvancesOnlyOwnBullets(t *testing.T) {
	world := NewWorld()
	mine := newTestBullet(world, 7, 0, 0, 100)
	theirs := newTestBullet(world, 8, 0, 50, 100)

	world.SetScope(LocalPlayerScope(7))
	sys := &BulletFlightSystem{}
	sys.Step(world, 0.1)

	if mine.GetPosition().X != 10 {
		t.Errorf("own bullet X = %f, want 10", mine.GetPosition().X)
	}
	if theirs.GetPosition().X != 0 {
		t.Error("remote bullet must not be advanced by prediction")
	}
}

func TestBulletImpactSystemDamagesAndRetires(t *testing.T) {
	world := NewWorld()
	bullet := newTestBullet(world, 1, 100, 100, 0)

	enemy := world.CreateEntity()
	enemy.AddComponent(&PositionComponent{X: 105, Y: 100})
	enemy.AddComponent(&CircleColliderComponent{Radius: 14, Layer: LayerEnemy})
	enemy.AddComponent(&EnemyComponent{})
	enemy.AddComponent(&HealthComponent{Current: 30, Max: 30})
	world.Update(0)

	world.SetScope(FullScope())
	sys := &BulletImpactSystem{Hash: NewSpatialHash(1024, 1024)}
	sys.Step(world, 1.0/60.0)
	world.Update(0)

	if enemy.GetHealth().Current != 12 {
		t.Errorf("enemy HP = %f, want 12 after one 18-damage hit", enemy.GetHealth().Current)
	}
	if _, ok := world.GetEntity(bullet.ID); ok {
		t.Error("bullet should be consumed by the hit")
	}
}

func TestBulletImpactSystemKillRemovesEnemyAndEmits(t *testing.T) {
	world := NewWorld()
	newTestBullet(world, 1, 100, 100, 0)

	enemy := world.CreateEntity()
	enemy.AddComponent(&PositionComponent{X: 100, Y: 100})
	enemy.AddComponent(&CircleColliderComponent{Radius: 14, Layer: LayerEnemy})
	enemy.AddComponent(&EnemyComponent{})
	enemy.AddComponent(&HealthComponent{Current: 10, Max: 10})
	world.Update(0)

	var events []GameEvent
	world.SetScope(FullScope())
	sys := &BulletImpactSystem{Hash: NewSpatialHash(1024, 1024), Events: sinkFunc(func(e GameEvent) { events = append(events, e) })}
	sys.Step(world, 1.0/60.0)
	world.Update(0)

	if _, ok := world.GetEntity(enemy.ID); ok {
		t.Error("enemy at 0 HP should be removed")
	}
	if len(events) != 1 || events[0].Kind != "enemy-killed" {
		t.Errorf("events = %+v, want single enemy-killed", events)
	}
}

func newMeleeTestSetup(t *testing.T) (*World, *Entity, *MeleeAttackSystem, *[]GameEvent) {
	t.Helper()
	world := NewWorld()
	player := NewSkirmishPlayerEntity(world, 1, CharacterBrawler, 100, 100)
	world.Update(0)

	events := &[]GameEvent{}
	sys := &MeleeAttackSystem{
		Hash:   NewSpatialHash(1024, 1024),
		Events: sinkFunc(func(e GameEvent) { *events = append(*events, e) }),
	}
	return world, player, sys, events
}

func newMeleeTestEnemy(world *World, x, y, hp float64, resists ...*ResistanceComponent) *Entity {
	enemy := world.CreateEntity()
	enemy.AddComponent(&PositionComponent{X: x, Y: y})
	enemy.AddComponent(&CircleColliderComponent{Radius: 14, Layer: LayerEnemy})
	enemy.AddComponent(&EnemyComponent{})
	enemy.AddComponent(&HealthComponent{Current: hp, Max: hp})
	for _, r := range resists {
		enemy.AddComponent(r)
	}
	world.Update(0)
	return enemy
}

func TestMeleeAttackSystemSwingsOnEdgeAndCooldownBlocks(t *testing.T) {
	world, player, sys, events := newMeleeTestSetup(t)

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot})

	sys.Step(world, 1.0/60.0)
	if len(*events) != 1 || (*events)[0].Kind != "melee-swing" {
		t.Fatalf("events = %+v, want single melee-swing", *events)
	}

	// Held button: no edge, no second swing.
	sys.Step(world, 1.0/60.0)
	if len(*events) != 1 {
		t.Fatalf("held button swung again: %+v", *events)
	}

	// Released then pressed again, but still inside the cooldown window.
	world.SetPlayerInput(player.ID, TickInput{})
	sys.Step(world, 1.0/60.0)
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot})
	sys.Step(world, 1.0/60.0)
	if len(*events) != 1 {
		t.Fatalf("swing fired inside cooldown: %+v", *events)
	}

	// Past the cooldown the next edge swings again.
	world.SetPlayerInput(player.ID, TickInput{})
	sys.Step(world, 1.0)
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot})
	sys.Step(world, 1.0/60.0)
	if len(*events) != 2 {
		t.Fatalf("expected second swing after cooldown, got %+v", *events)
	}
}

func TestMeleeAttackSystemDamagesEnemyInArc(t *testing.T) {
	world, player, sys, events := newMeleeTestSetup(t)

	// Aim angle 0 points +x: one enemy in front, one behind.
	ahead := newMeleeTestEnemy(world, 140, 100, 60)
	behind := newMeleeTestEnemy(world, 40, 100, 60)

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot, AimAngle: 0})
	sys.Step(world, 1.0/60.0)

	if got := ahead.GetHealth().Current; got != 30 {
		t.Errorf("enemy in arc HP = %f, want 30 after one 30-damage swing", got)
	}
	if got := behind.GetHealth().Current; got != 60 {
		t.Errorf("enemy behind the attacker HP = %f, want untouched 60", got)
	}
	if len(*events) != 1 {
		t.Errorf("events = %+v, want just the swing", *events)
	}
}

func TestMeleeAttackSystemRoutesDamageThroughResistances(t *testing.T) {
	world, player, sys, _ := newMeleeTestSetup(t)

	// 25% physical resistance: a 30-damage swing lands 22.5.
	armored := newMeleeTestEnemy(world, 140, 100, 60, &ResistanceComponent{
		Values: combat.Resistances{combat.DamagePhysical: 0.25},
	})

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot, AimAngle: 0})
	sys.Step(world, 1.0/60.0)

	if got := armored.GetHealth().Current; got != 37.5 {
		t.Errorf("armored enemy HP = %f, want 37.5", got)
	}
}

func TestMeleeAttackSystemKillEmitsEnemyKilled(t *testing.T) {
	world, player, sys, events := newMeleeTestSetup(t)
	enemy := newMeleeTestEnemy(world, 140, 100, 10)

	world.SetScope(FullScope())
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot, AimAngle: 0})
	sys.Step(world, 1.0/60.0)
	world.Update(0)

	if _, ok := world.GetEntity(enemy.ID); ok {
		t.Error("enemy at 0 HP should be removed")
	}
	kinds := make([]string, 0, len(*events))
	for _, e := range *events {
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[0] != "melee-swing" || kinds[1] != "enemy-killed" {
		t.Errorf("events = %v, want [melee-swing enemy-killed]", kinds)
	}
}

func TestMeleeAttackSystemPredictsSwingWithoutDamage(t *testing.T) {
	world, player, sys, events := newMeleeTestSetup(t)
	enemy := newMeleeTestEnemy(world, 140, 100, 60)

	world.SetScope(LocalPlayerScope(player.ID))
	world.SetPlayerInput(player.ID, TickInput{Buttons: ButtonShoot, AimAngle: 0})
	sys.Step(world, 1.0/60.0)

	if len(*events) != 1 || (*events)[0].Kind != "melee-swing" {
		t.Fatalf("prediction should still emit the swing, got %+v", *events)
	}
	if enemy.GetHealth().Current != 60 {
		t.Error("prediction must not resolve enemy damage")
	}
}

func TestBulletImpactSystemRoutesDamageThroughResistances(t *testing.T) {
	world := NewWorld()
	newTestBullet(world, 1, 100, 100, 0)

	armored := newMeleeTestEnemy(world, 105, 100, 60, &ResistanceComponent{
		Values: combat.Resistances{combat.DamagePhysical: 0.25},
	})

	world.SetScope(FullScope())
	sys := &BulletImpactSystem{Hash: NewSpatialHash(1024, 1024)}
	sys.Step(world, 1.0/60.0)

	// 18 damage mitigated to 13.5.
	if got := armored.GetHealth().Current; got != 46.5 {
		t.Errorf("armored enemy HP = %f, want 46.5", got)
	}
}

func TestBulletImpactSystemSkipsLocalScope(t *testing.T) {
	world := NewWorld()
	newTestBullet(world, 1, 100, 100, 0)

	enemy := world.CreateEntity()
	enemy.AddComponent(&PositionComponent{X: 100, Y: 100})
	enemy.AddComponent(&CircleColliderComponent{Radius: 14, Layer: LayerEnemy})
	enemy.AddComponent(&EnemyComponent{})
	enemy.AddComponent(&HealthComponent{Current: 10, Max: 10})
	world.Update(0)

	world.SetScope(LocalPlayerScope(1))
	sys := &BulletImpactSystem{Hash: NewSpatialHash(1024, 1024)}
	sys.Step(world, 1.0/60.0)

	if enemy.GetHealth().Current != 10 {
		t.Error("prediction must not resolve enemy damage")
	}
}

// TestEventSequenceParityBetweenFullAndPredictionDrivers feeds one input
// trace through the authoritative ALL set and, on a second identical
// world, through the client's PREDICTION set, and requires the same
// ordered sequence of player-facing event kinds from both — for the
// gunslinger's fire/reload/dry-fire stream and the brawler's melee-swing
// stream alike. Replay is movement-only, so reconciliation can never add
// a third sequence.
func TestEventSequenceParityBetweenFullAndPredictionDrivers(t *testing.T) {
	trace := []TickInput{
		{Buttons: ButtonShoot, AimAngle: 0.3},
		{},
		{Buttons: ButtonReload},
		{},
		{Buttons: ButtonShoot},
		{Buttons: ButtonShoot | ButtonRoll, MoveX: 1},
		{},
	}

	for _, character := range []uint8{CharacterGunslinger, CharacterBrawler} {
		fullEvents := runWithDriver(t, trace, character, true)
		predictedEvents := runWithDriver(t, trace, character, false)

		if len(fullEvents) != len(predictedEvents) {
			t.Fatalf("character %d event counts differ: full=%v predicted=%v", character, fullEvents, predictedEvents)
		}
		for i := range fullEvents {
			if fullEvents[i] != predictedEvents[i] {
				t.Fatalf("character %d event %d differs: full=%v predicted=%v", character, i, fullEvents, predictedEvents)
			}
		}
		if len(fullEvents) == 0 {
			t.Fatalf("character %d trace should produce at least one event", character)
		}
	}
}

func runWithDriver(t *testing.T, trace []TickInput, characterID uint8, full bool) []string {
	t.Helper()
	world := NewWorld()
	var kinds []string
	registry := NewSystemRegistry()
	RegisterSkirmishSystems(registry, sinkFunc(func(e GameEvent) { kinds = append(kinds, e.Kind) }), SpawnSkirmishBullet)
	player := NewSkirmishPlayerEntity(world, 1, characterID, 0, 0)
	world.Update(0)

	fullDrv := NewFullWorldDriver(registry, 1.0/60.0)
	localDrv := NewLocalPlayerDriver(registry, 1.0/60.0)
	for _, input := range trace {
		if full {
			fullDrv.Step(world, player.ID, input)
		} else {
			localDrv.Step(world, player.ID, input)
		}
		world.Update(0)
	}
	return kinds
}

type sinkFunc func(GameEvent)

func (f sinkFunc) Push(e GameEvent) { f(e) }
