// Package visual produces camera cues for the map renderer during visual
// segments. Successive cues wander smoothly around the current country.
package visual

import (
	"math"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/atlas-live/internal/broadcast"
)

// Config shapes the drift.
type Config struct {
	Seed     int64
	Radius   float64 // max offset from centre, degrees
	Step     float64 // noise-space distance between cues
	MinZoom  float64
	MaxZoom  float64
	Octaves  int
	Persist  float64
	BaseFreq float64
}

// DefaultConfig returns a gentle drift.
func DefaultConfig() Config {
	return Config{
		Seed:     42,
		Radius:   2.5,
		Step:     0.15,
		MinZoom:  4,
		MaxZoom:  7,
		Octaves:  3,
		Persist:  0.5,
		BaseFreq: 1,
	}
}

// Drift hands out camera focus points.
type Drift struct {
	cfg  Config
	lat  opensimplex.Noise
	lon  opensimplex.Noise
	zoom opensimplex.Noise

	mu sync.Mutex
	t  float64
}

// NewDrift creates a drift from cfg. Zero fields take defaults.
func NewDrift(cfg Config) *Drift {
	def := DefaultConfig()
	if cfg.Radius <= 0 {
		cfg.Radius = def.Radius
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.MaxZoom <= cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = def.MinZoom, def.MaxZoom
	}
	if cfg.Octaves <= 0 {
		cfg.Octaves = def.Octaves
	}
	if cfg.Persist <= 0 {
		cfg.Persist = def.Persist
	}
	if cfg.BaseFreq <= 0 {
		cfg.BaseFreq = def.BaseFreq
	}
	return &Drift{
		cfg:  cfg,
		lat:  opensimplex.NewNormalized(cfg.Seed),
		lon:  opensimplex.NewNormalized(cfg.Seed + 1),
		zoom: opensimplex.NewNormalized(cfg.Seed + 2),
	}
}

// Next returns the next focus point around (lat, lon).
func (d *Drift) Next(lat, lon float64) broadcast.Focus {
	d.mu.Lock()
	t := d.t
	d.t += d.cfg.Step
	d.mu.Unlock()

	// Normalized noise is in [0, 1]; recentre to [-1, 1].
	dy := octaveNoise(d.lat, t, 0, d.cfg.Octaves, d.cfg.BaseFreq, d.cfg.Persist)*2 - 1
	dx := octaveNoise(d.lon, t, 0, d.cfg.Octaves, d.cfg.BaseFreq, d.cfg.Persist)*2 - 1
	z := octaveNoise(d.zoom, t, 0, d.cfg.Octaves, d.cfg.BaseFreq, d.cfg.Persist)

	return broadcast.Focus{
		Lat:  clamp(lat+dy*d.cfg.Radius, -85, 85),
		Lon:  wrapLon(lon + dx*d.cfg.Radius),
		Zoom: d.cfg.MinZoom + z*(d.cfg.MaxZoom-d.cfg.MinZoom),
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// wrapLon maps lon into [-180, 180). Non-finite input maps to 0.
func wrapLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	r := math.Mod(lon+180, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r -= 360
	}
	return r - 180
}
