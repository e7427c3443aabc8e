package netcode

// EidMap is a bidirectional mapping between the server's authoritative
// entity ids and the client's locally-created entity ids for the same
// logical entity. The client needs this in both directions: server->local
// to find which local entity a snapshot entry updates, and local->server
// to report hits/interactions keyed by the id the server will recognize.
type EidMap struct {
	serverToLocal map[uint64]uint64
	localToServer map[uint64]uint64
}

// NewEidMap creates an empty mapping.
func NewEidMap() *EidMap {
	return &EidMap{
		serverToLocal: make(map[uint64]uint64),
		localToServer: make(map[uint64]uint64),
	}
}

// Bind records that serverEid and localEid refer to the same entity.
func (m *EidMap) Bind(serverEid, localEid uint64) {
	m.serverToLocal[serverEid] = localEid
	m.localToServer[localEid] = serverEid
}

// LocalFor returns the local entity id bound to serverEid, if any.
func (m *EidMap) LocalFor(serverEid uint64) (uint64, bool) {
	local, ok := m.serverToLocal[serverEid]
	return local, ok
}

// ServerFor returns the server entity id bound to localEid, if any.
func (m *EidMap) ServerFor(localEid uint64) (uint64, bool) {
	server, ok := m.localToServer[localEid]
	return server, ok
}

// Unbind removes a mapping by its server id.
func (m *EidMap) Unbind(serverEid uint64) {
	if local, ok := m.serverToLocal[serverEid]; ok {
		delete(m.localToServer, local)
		delete(m.serverToLocal, serverEid)
	}
}

// UnbindLocal removes a mapping by its local id.
func (m *EidMap) UnbindLocal(localEid uint64) {
	if server, ok := m.localToServer[localEid]; ok {
		delete(m.serverToLocal, server)
		delete(m.localToServer, localEid)
	}
}

// Len reports the number of bound pairs.
func (m *EidMap) Len() int {
	return len(m.serverToLocal)
}

// EidMaps bundles the three per-kind id maps the ingestor and predicted
// tracker need: players, bullets, and enemies each get independent id
// spaces on both the server and client.
type EidMaps struct {
	Players *EidMap
	Bullets *EidMap
	Enemies *EidMap
}

// NewEidMaps creates an empty set of per-kind id maps.
func NewEidMaps() *EidMaps {
	return &EidMaps{
		Players: NewEidMap(),
		Bullets: NewEidMap(),
		Enemies: NewEidMap(),
	}
}
