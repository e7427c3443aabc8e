package main

import "github.com/hollowtick/skirmish/pkg/engine"

// createPlayerEntity and spawnServerBullet are thin aliases over the
// shared skirmish entity factory in pkg/engine, kept local so lobby.go and
// main.go read the same way the embedded server (pkg/hostplay) does.
func createPlayerEntity(world *engine.World, eid uint64, characterID uint8, x, y float64) *engine.Entity {
	return engine.NewSkirmishPlayerEntity(world, eid, characterID, x, y)
}

func spawnServerBullet(world *engine.World, owner *engine.Entity, angle float64) {
	engine.SpawnSkirmishBullet(world, owner, angle)
}
