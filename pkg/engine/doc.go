// Package engine provides the deterministic simulation underneath the
// skirmish netcode: the Entity-Component-System framework, the twin-stick
// gameplay components and systems, the scoped tick drivers prediction and
// replay run through, and the spatial hash the collision passes consult.
//
// The engine never renders and never touches a socket. The client binaries
// own presentation; pkg/netcode owns the wire.
package engine
