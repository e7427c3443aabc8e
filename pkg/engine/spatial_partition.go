// Package engine provides spatial partitioning for efficient entity queries.
// This file implements the quadtree behind SpatialHash, the proximity index
// the server's collision pass and the client's post-snapshot queries share.
package engine

// Bounds represents a rectangular area in 2D space.
type Bounds struct {
	X, Y          float64 // Top-left corner
	Width, Height float64
}

// Contains checks if a point is within the bounds.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.X && x < b.X+b.Width &&
		y >= b.Y && y < b.Y+b.Height
}

// Intersects checks if two bounds overlap.
func (b Bounds) Intersects(other Bounds) bool {
	return !(other.X >= b.X+b.Width ||
		other.X+other.Width <= b.X ||
		other.Y >= b.Y+b.Height ||
		other.Y+other.Height <= b.Y)
}

// Quadtree provides spatial partitioning for efficient entity queries.
// It divides 2D space into nested rectangles for O(log n) proximity searches.
type Quadtree struct {
	bounds   Bounds
	capacity int
	entities []*Entity
	divided  bool

	// Child quadrants (NW, NE, SW, SE)
	northwest *Quadtree
	northeast *Quadtree
	southwest *Quadtree
	southeast *Quadtree
}

// NewQuadtree creates a new quadtree with the given bounds and capacity.
// Capacity determines how many entities can be stored before subdivision.
func NewQuadtree(bounds Bounds, capacity int) *Quadtree {
	return &Quadtree{
		bounds:   bounds,
		capacity: capacity,
		entities: make([]*Entity, 0, capacity),
		divided:  false,
	}
}

// Insert adds an entity to the quadtree.
// Returns true if successful, false if the entity is outside bounds.
func (q *Quadtree) Insert(entity *Entity) bool {
	pos := entity.GetPosition()
	if pos == nil {
		return false
	}

	if !q.bounds.Contains(pos.X, pos.Y) {
		return false
	}

	if len(q.entities) < q.capacity {
		q.entities = append(q.entities, entity)
		return true
	}

	if !q.divided {
		q.subdivide()
	}

	if q.northwest.Insert(entity) {
		return true
	}
	if q.northeast.Insert(entity) {
		return true
	}
	if q.southwest.Insert(entity) {
		return true
	}
	if q.southeast.Insert(entity) {
		return true
	}

	// Shouldn't happen, but handle gracefully
	return false
}

// subdivide splits this quadrant into four children.
func (q *Quadtree) subdivide() {
	x := q.bounds.X
	y := q.bounds.Y
	w := q.bounds.Width / 2
	h := q.bounds.Height / 2

	q.northwest = NewQuadtree(Bounds{x, y, w, h}, q.capacity)
	q.northeast = NewQuadtree(Bounds{x + w, y, w, h}, q.capacity)
	q.southwest = NewQuadtree(Bounds{x, y + h, w, h}, q.capacity)
	q.southeast = NewQuadtree(Bounds{x + w, y + h, w, h}, q.capacity)

	q.divided = true
}

// Query returns all entities within the given bounds.
func (q *Quadtree) Query(queryBounds Bounds) []*Entity {
	result := make([]*Entity, 0)
	q.queryRecursive(queryBounds, &result)
	return result
}

// queryRecursive performs the actual recursive query.
func (q *Quadtree) queryRecursive(queryBounds Bounds, result *[]*Entity) {
	if !q.bounds.Intersects(queryBounds) {
		return
	}

	for _, entity := range q.entities {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		if queryBounds.Contains(pos.X, pos.Y) {
			*result = append(*result, entity)
		}
	}

	if q.divided {
		q.northwest.queryRecursive(queryBounds, result)
		q.northeast.queryRecursive(queryBounds, result)
		q.southwest.queryRecursive(queryBounds, result)
		q.southeast.queryRecursive(queryBounds, result)
	}
}

// QueryRadius returns all entities within a circular radius of a point.
func (q *Quadtree) QueryRadius(x, y, radius float64) []*Entity {
	queryBounds := Bounds{
		X:      x - radius,
		Y:      y - radius,
		Width:  radius * 2,
		Height: radius * 2,
	}

	candidates := q.Query(queryBounds)

	result := make([]*Entity, 0, len(candidates))
	radiusSq := radius * radius

	for _, entity := range candidates {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		dx := pos.X - x
		dy := pos.Y - y
		if dx*dx+dy*dy <= radiusSq {
			result = append(result, entity)
		}
	}

	return result
}

// Clear removes all entities from the quadtree.
func (q *Quadtree) Clear() {
	q.entities = q.entities[:0]
	q.divided = false
	q.northwest = nil
	q.northeast = nil
	q.southwest = nil
	q.southeast = nil
}

// Rebuild reconstructs the quadtree with current entities.
func (q *Quadtree) Rebuild(entities []*Entity) {
	q.Clear()
	for _, entity := range entities {
		q.Insert(entity)
	}
}

// Count returns the total number of entities in the tree.
func (q *Quadtree) Count() int {
	count := len(q.entities)
	if q.divided {
		count += q.northwest.Count()
		count += q.northeast.Count()
		count += q.southwest.Count()
		count += q.southeast.Count()
	}
	return count
}

// SpatialHash is the proximity index the simulation consults for
// radius-bounded entity lookups. The authoritative server rebuilds it once
// per tick before its collision pass; the client rebuilds it exactly once
// per applied snapshot. Prediction under LocalPlayer scope never rebuilds.
type SpatialHash struct {
	tree *Quadtree
}

// NewSpatialHash creates a hash covering a world of the given dimensions.
func NewSpatialHash(worldWidth, worldHeight float64) *SpatialHash {
	return &SpatialHash{
		tree: NewQuadtree(Bounds{X: 0, Y: 0, Width: worldWidth, Height: worldHeight}, 16),
	}
}

// Rebuild re-indexes the given entities from scratch.
func (s *SpatialHash) Rebuild(entities []*Entity) {
	s.tree.Rebuild(entities)
}

// ForEachInRadius calls f for every indexed entity within radius of (cx, cy).
func (s *SpatialHash) ForEachInRadius(cx, cy, radius float64, f func(*Entity)) {
	for _, entity := range s.tree.QueryRadius(cx, cy, radius) {
		f(entity)
	}
}

// Count returns the number of indexed entities.
func (s *SpatialHash) Count() int {
	return s.tree.Count()
}
