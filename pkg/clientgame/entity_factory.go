// Package clientgame holds the ebiten.Game implementation shared by the
// desktop client (cmd/client) and the mobile binding (cmd/mobile), so both
// surfaces drive the same predicted-local/authoritative-remote simulation
// instead of maintaining two copies of the netcode wiring.
package clientgame

import "github.com/hollowtick/skirmish/pkg/engine"

// EntityFactory implements netcode.LocalEntityFactory: it builds the
// local-side entity the SnapshotIngestor binds a server eid to the first
// time that eid appears in a snapshot. Position/velocity are left at zero
// since the ingestor overwrites them from the snapshot immediately after
// creation; this factory only needs to get the component set right. The
// character id picks the loadout: revolver kit for ranged characters,
// melee weapon for the brawler.
type EntityFactory struct{}

func (EntityFactory) CreatePlayer(world *engine.World, serverEid uint64, characterID uint8) *engine.Entity {
	return engine.NewSkirmishPlayerEntity(world, serverEid, characterID, 0, 0)
}

func (EntityFactory) CreateBullet(world *engine.World, serverEid, ownerLocalEid uint64, layer uint8) *engine.Entity {
	bullet := world.CreateEntity()
	bullet.AddComponent(&engine.PositionComponent{})
	bullet.AddComponent(&engine.VelocityComponent{})
	bullet.AddComponent(&engine.CircleColliderComponent{Radius: 4, Layer: layer})
	bullet.AddComponent(&engine.BulletComponent{OwnerID: ownerLocalEid})
	return bullet
}

func (EntityFactory) CreateEnemy(world *engine.World, serverEid uint64, enemyType, tier uint8) *engine.Entity {
	return engine.NewSkirmishEnemyEntity(world, enemyType, engine.EnemyTier(tier), 0, 0)
}
