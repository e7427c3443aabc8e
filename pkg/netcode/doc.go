// Package netcode implements client-side prediction, server-authoritative
// snapshot replication, and reconciliation for the twin-stick shooter's
// multiplayer sessions: the binary snapshot protocol and its buffers, the
// entity-id maps and snapshot ingestor, predicted-bullet tracking, the
// reconciler's rewind-and-replay, clock sync, and the WebSocket session on
// both ends. It is built around pkg/engine's SimulationScope so the same
// system registry steps both the authoritative server and the client's
// predicted local player.
package netcode
