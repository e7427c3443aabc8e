package engine

import "testing"

func TestNewEntity(t *testing.T) {
	entity := NewEntity(1)
	if entity.ID != 1 {
		t.Errorf("Expected entity ID 1, got %d", entity.ID)
	}
	if entity.Components == nil {
		t.Error("Expected Components map to be initialized")
	}
}

type MockComponent struct {
	Value string
}

func (m *MockComponent) Type() string {
	return "mock"
}

func TestEntityComponents(t *testing.T) {
	entity := NewEntity(1)

	comp := &MockComponent{Value: "test"}
	entity.AddComponent(comp)

	if !entity.HasComponent("mock") {
		t.Error("Expected entity to have mock component")
	}

	retrieved, ok := entity.GetComponent("mock")
	if !ok {
		t.Error("Expected to retrieve mock component")
	}
	if mockComp, ok := retrieved.(*MockComponent); !ok || mockComp.Value != "test" {
		t.Error("Retrieved component doesn't match")
	}

	entity.RemoveComponent("mock")
	if entity.HasComponent("mock") {
		t.Error("Expected component to be removed")
	}
}

func TestEntityHotPathCache(t *testing.T) {
	entity := NewEntity(1)

	entity.AddComponent(&PositionComponent{X: 3})
	entity.AddComponent(&VelocityComponent{VX: 5})
	entity.AddComponent(&HealthComponent{Current: 10, Max: 10})
	entity.AddComponent(&CircleColliderComponent{Radius: 4, Layer: LayerPlayerBullet})

	if entity.GetPosition() == nil || entity.GetPosition().X != 3 {
		t.Error("cached position accessor mismatch")
	}
	if entity.GetVelocity() == nil || entity.GetVelocity().VX != 5 {
		t.Error("cached velocity accessor mismatch")
	}
	if entity.GetHealth() == nil || entity.GetHealth().Max != 10 {
		t.Error("cached health accessor mismatch")
	}
	if entity.GetCircleCollider() == nil || entity.GetCircleCollider().Radius != 4 {
		t.Error("cached collider accessor mismatch")
	}

	entity.RemoveComponent("circle_collider")
	if entity.GetCircleCollider() != nil {
		t.Error("removed component should clear its cached pointer")
	}
}

func TestWorld(t *testing.T) {
	world := NewWorld()

	entity := world.CreateEntity()
	if entity.ID != 0 {
		t.Errorf("Expected first entity ID to be 0, got %d", entity.ID)
	}

	// Ensure entity is added after update
	world.Update(0.016)

	retrieved, ok := world.GetEntity(entity.ID)
	if !ok {
		t.Error("Expected to retrieve created entity")
	}
	if retrieved.ID != entity.ID {
		t.Error("Retrieved entity doesn't match")
	}

	world.RemoveEntity(entity.ID)
	world.Update(0.016)

	_, ok = world.GetEntity(entity.ID)
	if ok {
		t.Error("Expected entity to be removed")
	}
}

type MockSystem struct {
	UpdateCount int
}

func (s *MockSystem) Update(entities []*Entity, deltaTime float64) {
	s.UpdateCount++
}

func TestWorldSystems(t *testing.T) {
	world := NewWorld()
	system := &MockSystem{}

	world.AddSystem(system)
	world.Update(0.016)

	if system.UpdateCount != 1 {
		t.Errorf("Expected system to be updated once, got %d", system.UpdateCount)
	}
}

func TestGetEntitiesWith(t *testing.T) {
	world := NewWorld()

	entity1 := world.CreateEntity()
	entity1.AddComponent(&MockComponent{Value: "e1"})

	entity2 := world.CreateEntity()
	entity2.AddComponent(&MockComponent{Value: "e2"})

	_ = world.CreateEntity()
	// No components

	world.Update(0.016)

	entities := world.GetEntitiesWith("mock")
	if len(entities) != 2 {
		t.Errorf("Expected 2 entities with mock component, got %d", len(entities))
	}
}

func TestWorldTickAndScope(t *testing.T) {
	world := NewWorld()

	if world.Tick() != 0 {
		t.Errorf("fresh world tick = %d, want 0", world.Tick())
	}
	world.AdvanceTick()
	world.SetTick(100)
	if world.Tick() != 100 {
		t.Errorf("tick after SetTick = %d, want 100", world.Tick())
	}

	if !world.Scope().IsFull() {
		t.Error("fresh world should start in full scope")
	}
	world.SetScope(LocalPlayerScope(7))
	if world.Scope().IsFull() {
		t.Error("scope should be local after SetScope")
	}
	if eid, ok := world.Scope().LocalEid(); !ok || eid != 7 {
		t.Errorf("LocalEid = (%d, %v), want (7, true)", eid, ok)
	}
	if !world.Scope().IsLocalPlayer(7) || world.Scope().IsLocalPlayer(8) {
		t.Error("IsLocalPlayer should match only the scoped eid")
	}
}

func TestWorldPlayerInput(t *testing.T) {
	world := NewWorld()

	if _, ok := world.PlayerInput(1); ok {
		t.Error("expected no input before SetPlayerInput")
	}
	world.SetPlayerInput(1, TickInput{Buttons: ButtonShoot, MoveX: 1})
	input, ok := world.PlayerInput(1)
	if !ok || input.Buttons != ButtonShoot || input.MoveX != 1 {
		t.Errorf("PlayerInput = (%+v, %v)", input, ok)
	}
}
