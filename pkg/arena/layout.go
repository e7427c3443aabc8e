// Package arena lays out the skirmish arena's spawn geometry: where
// freshly joined players appear, and the hostile-free safe zone around
// each spawn. The layout is deterministic in the world seed, so a server
// restarted with the same seed places everyone identically and clients
// can trust the seed handed out in game-config.
package arena

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// SpawnPoint is one player spawn location and its protective radius.
type SpawnPoint struct {
	X, Y       float64
	SafeRadius float64
}

// Config bounds the layout. Distances are world units (pixels).
type Config struct {
	// Width and Height are the arena dimensions, centered on the origin.
	Width, Height float64

	// SpawnCount is how many spawn points to place, typically the
	// server's player capacity.
	SpawnCount int

	// MinSpacing is the smallest allowed distance between two spawn
	// points, so players never appear inside each other's safe zone.
	MinSpacing float64

	// SafeRadius is the hostile-free radius around each spawn.
	SafeRadius float64

	// Margin keeps spawns away from the arena edge.
	Margin float64
}

// DefaultConfig sizes the arena for a standard lobby: an 8-player layout
// with safe zones that cannot touch.
func DefaultConfig() Config {
	return Config{
		Width:      3200,
		Height:     3200,
		SpawnCount: 8,
		MinSpacing: 320,
		SafeRadius: 96,
		Margin:     160,
	}
}

// Layout is a generated arena: the seed it came from and its spawns.
type Layout struct {
	Seed   int64
	Config Config
	Spawns []SpawnPoint
}

// Generate places Config.SpawnCount spawn points deterministically from
// seed. Placement tries rejection sampling first (scattered spawns with
// MinSpacing kept); positions that can't be scattered within the attempt
// budget fall back to an evenly spaced perimeter ring so a layout always
// completes, trading strict spacing for completeness in overfull configs.
func Generate(seed int64, cfg Config) (*Layout, error) {
	return GenerateWithLogger(seed, cfg, nil)
}

// GenerateWithLogger is Generate with a debug-level generation summary.
func GenerateWithLogger(seed int64, cfg Config, logger *logrus.Logger) (*Layout, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	layout := &Layout{
		Seed:   seed,
		Config: cfg,
		Spawns: make([]SpawnPoint, 0, cfg.SpawnCount),
	}

	halfW := cfg.Width/2 - cfg.Margin
	halfH := cfg.Height/2 - cfg.Margin

	// Scatter pass: random in-bounds candidates, kept only when they
	// respect MinSpacing against everything placed so far.
	const attemptsPerSpawn = 32
	scattered := 0
	for len(layout.Spawns) < cfg.SpawnCount {
		placed := false
		for attempt := 0; attempt < attemptsPerSpawn; attempt++ {
			x := (rng.Float64()*2 - 1) * halfW
			y := (rng.Float64()*2 - 1) * halfH
			if layout.spacedFrom(x, y, cfg.MinSpacing) {
				layout.Spawns = append(layout.Spawns, SpawnPoint{X: x, Y: y, SafeRadius: cfg.SafeRadius})
				scattered++
				placed = true
				break
			}
		}
		if !placed {
			break
		}
	}

	// Ring fallback for whatever the scatter pass couldn't fit: evenly
	// spaced angles on the inset perimeter ellipse, phase-shifted by the
	// seed so different worlds still differ.
	missing := cfg.SpawnCount - len(layout.Spawns)
	if missing > 0 {
		phase := rng.Float64() * 2 * math.Pi
		for i := 0; i < missing; i++ {
			angle := phase + 2*math.Pi*float64(i)/float64(missing)
			layout.Spawns = append(layout.Spawns, SpawnPoint{
				X:          math.Cos(angle) * halfW,
				Y:          math.Sin(angle) * halfH,
				SafeRadius: cfg.SafeRadius,
			})
		}
	}

	if logger != nil && logger.GetLevel() >= logrus.DebugLevel {
		logger.WithFields(logrus.Fields{
			"seed": seed, "spawns": len(layout.Spawns), "scattered": scattered, "ringed": missing,
		}).Debug("arena layout generated")
	}

	return layout, nil
}

func validate(cfg Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("arena: dimensions must be positive (got %gx%g)", cfg.Width, cfg.Height)
	}
	if cfg.SpawnCount < 1 {
		return fmt.Errorf("arena: spawn count must be at least 1 (got %d)", cfg.SpawnCount)
	}
	if cfg.Margin*2 >= cfg.Width || cfg.Margin*2 >= cfg.Height {
		return fmt.Errorf("arena: margin %g leaves no interior in a %gx%g arena", cfg.Margin, cfg.Width, cfg.Height)
	}
	if cfg.MinSpacing < cfg.SafeRadius*2 {
		return fmt.Errorf("arena: min spacing %g lets safe zones of radius %g overlap", cfg.MinSpacing, cfg.SafeRadius)
	}
	return nil
}

// spacedFrom reports whether (x, y) keeps at least minSpacing to every
// placed spawn.
func (l *Layout) spacedFrom(x, y, minSpacing float64) bool {
	for _, s := range l.Spawns {
		if math.Hypot(s.X-x, s.Y-y) < minSpacing {
			return false
		}
	}
	return true
}

// SpawnFor returns the spawn point for the nth joining player, cycling
// once every spawn has been used.
func (l *Layout) SpawnFor(n int) SpawnPoint {
	if n < 0 {
		n = -n
	}
	return l.Spawns[n%len(l.Spawns)]
}

// InSafeZone reports whether (x, y) falls inside any spawn's protective
// radius; the server keeps hostiles out of these.
func (l *Layout) InSafeZone(x, y float64) bool {
	for _, s := range l.Spawns {
		if math.Hypot(s.X-x, s.Y-y) <= s.SafeRadius {
			return true
		}
	}
	return false
}
