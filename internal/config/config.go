// Package config loads the broadcast configuration from a YAML or TOML file,
// applies ATLAS_* environment overrides, and validates the result.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/talgya/atlas-live/internal/atlas"
	"github.com/talgya/atlas-live/internal/broadcast"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ATLAS_"

// Duration is a time.Duration written as "1s", "10m" in files and env.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Heartbeat controls the scheduler cadence.
type Heartbeat struct {
	Interval        Duration `yaml:"interval" toml:"interval" env:"INTERVAL"`
	MaxSilenceTicks int      `yaml:"max_silence_ticks" toml:"max_silence_ticks" env:"MAX_SILENCE_TICKS"`
	StartDelayTicks int      `yaml:"start_delay_ticks" toml:"start_delay_ticks" env:"START_DELAY_TICKS"`
	NarrateEvery    int      `yaml:"narrate_every" toml:"narrate_every" env:"NARRATE_EVERY"`
}

// Pacing holds the airtime targets.
type Pacing struct {
	Window  Duration `yaml:"window" toml:"window" env:"WINDOW"`
	Voice   float64  `yaml:"voice" toml:"voice" env:"VOICE"`
	Visual  float64  `yaml:"visual" toml:"visual" env:"VISUAL"`
	Silence float64  `yaml:"silence" toml:"silence" env:"SILENCE"`
}

// Generation configures the dialogue endpoint.
type Generation struct {
	Endpoint     string   `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	Temperature  float64  `yaml:"temperature" toml:"temperature" env:"TEMPERATURE"`
	Timeout      Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	MaxPerMinute int      `yaml:"max_per_minute" toml:"max_per_minute" env:"MAX_PER_MINUTE"`
}

// TTS configures speech synthesis.
type TTS struct {
	Endpoint  string            `yaml:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	Timeout   Duration          `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	MsPerChar int               `yaml:"ms_per_char" toml:"ms_per_char" env:"MS_PER_CHAR"`
	Voices    map[string]string `yaml:"voices" toml:"voices" env:"VOICES"`
}

// Dialogue configures the two characters and their material.
type Dialogue struct {
	TagA   string             `yaml:"tag_a" toml:"tag_a" env:"TAG_A"`
	TagB   string             `yaml:"tag_b" toml:"tag_b" env:"TAG_B"`
	NameA  string             `yaml:"name_a" toml:"name_a" env:"NAME_A"`
	NameB  string             `yaml:"name_b" toml:"name_b" env:"NAME_B"`
	Topics []string           `yaml:"topics" toml:"topics" env:"TOPICS" envSeparator:"|"`
	Seeds  []broadcast.Script `yaml:"seeds" toml:"seeds"`
}

// Memory configures repetition avoidance.
type Memory struct {
	HardCap             int     `yaml:"hard_cap" toml:"hard_cap" env:"HARD_CAP"`
	RecentCap           int     `yaml:"recent_cap" toml:"recent_cap" env:"RECENT_CAP"`
	ReflectionThreshold float64 `yaml:"reflection_threshold" toml:"reflection_threshold" env:"REFLECTION_THRESHOLD"`
}

// Visual configures camera drift.
type Visual struct {
	Seed   int64   `yaml:"seed" toml:"seed" env:"SEED"`
	Radius float64 `yaml:"radius" toml:"radius" env:"RADIUS"`
}

// Storage configures persistence.
type Storage struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// Weather configures live conditions on arrival days.
type Weather struct {
	APIKey  string   `yaml:"api_key" toml:"api_key" env:"API_KEY"`
	Timeout Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// Entropy configures the random source.
type Entropy struct {
	RandomOrgKey string `yaml:"random_org_key" toml:"random_org_key" env:"RANDOM_ORG_KEY"`
}

// API configures the HTTP server.
type API struct {
	Port           int      `yaml:"port" toml:"port" env:"PORT"`
	AdminKey       string   `yaml:"admin_key" toml:"admin_key" env:"ADMIN_KEY"`
	RelayKey       string   `yaml:"relay_key" toml:"relay_key" env:"RELAY_KEY"`
	TriggerPerHour int      `yaml:"trigger_per_hour" toml:"trigger_per_hour" env:"TRIGGER_PER_HOUR"`
	CORSOrigins    []string `yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS"`
}

// Config is the whole configuration.
type Config struct {
	Heartbeat  Heartbeat           `yaml:"heartbeat" toml:"heartbeat"`
	Pacing     Pacing              `yaml:"pacing" toml:"pacing"`
	Generation Generation          `yaml:"generation" toml:"generation"`
	TTS        TTS                 `yaml:"tts" toml:"tts"`
	Dialogue   Dialogue            `yaml:"dialogue" toml:"dialogue"`
	Memory     Memory              `yaml:"memory" toml:"memory"`
	Visual     Visual              `yaml:"visual" toml:"visual"`
	Storage    Storage             `yaml:"storage" toml:"storage"`
	API        API                 `yaml:"api" toml:"api"`
	Weather    Weather             `yaml:"weather" toml:"weather"`
	Entropy    Entropy             `yaml:"entropy" toml:"entropy"`
	Phrases    map[string][]string `yaml:"phrases" toml:"phrases"`
	Countries  []atlas.Country     `yaml:"countries" toml:"countries"`
}

// envSections lists the sections that take environment overrides, with the
// prefix each one reads under EnvPrefix. Catalogue content is file-only.
func (c *Config) envSections() []struct {
	prefix string
	target any
} {
	return []struct {
		prefix string
		target any
	}{
		{"HEARTBEAT_", &c.Heartbeat},
		{"PACING_", &c.Pacing},
		{"GENERATION_", &c.Generation},
		{"TTS_", &c.TTS},
		{"DIALOGUE_", &c.Dialogue},
		{"MEMORY_", &c.Memory},
		{"VISUAL_", &c.Visual},
		{"STORAGE_", &c.Storage},
		{"API_", &c.API},
		{"WEATHER_", &c.Weather},
		{"", &c.Entropy},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates. Files ending in .toml are TOML; anything else is YAML.
func Load(path string) (Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	vars := env.ToMap(environ)
	for _, sec := range cfg.envSections() {
		opts := env.Options{Prefix: EnvPrefix + sec.prefix, Environment: vars}
		if err := env.ParseWithOptions(sec.target, opts); err != nil {
			return Config{}, fmt.Errorf("parse env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		// Array tables append to an existing slice; a file that lists
		// countries replaces the built-in catalogue instead.
		var probe map[string]any
		if err := toml.Unmarshal(data, &probe); err != nil {
			return err
		}
		if _, ok := probe["countries"]; ok {
			cfg.Countries = nil
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Encode renders cfg in the format implied by path's extension.
func Encode(path string, cfg Config) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}

// Validate checks ranges and required content.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Heartbeat.Interval > 0, "heartbeat.interval must be positive")
	check(c.Heartbeat.MaxSilenceTicks >= 1, "heartbeat.max_silence_ticks must be at least 1")
	check(c.Heartbeat.NarrateEvery >= 0, "heartbeat.narrate_every must not be negative")

	check(c.Pacing.Window > 0, "pacing.window must be positive")
	check(c.Pacing.Voice >= 0 && c.Pacing.Visual >= 0 && c.Pacing.Silence >= 0, "pacing targets must not be negative")
	sum := c.Pacing.Voice + c.Pacing.Visual + c.Pacing.Silence
	check(math.Abs(sum-1) < 1e-6, "pacing targets sum to %.3f, want 1", sum)

	check(c.Generation.Temperature >= 0 && c.Generation.Temperature <= 2, "generation.temperature %.2f out of [0, 2]", c.Generation.Temperature)
	check(c.Generation.MaxPerMinute >= 0, "generation.max_per_minute must not be negative")
	check(c.TTS.MsPerChar > 0, "tts.ms_per_char must be positive")

	check(strings.TrimSpace(c.Dialogue.TagA) != "" && strings.TrimSpace(c.Dialogue.TagB) != "", "dialogue tags must be set")
	check(!strings.EqualFold(c.Dialogue.TagA, c.Dialogue.TagB), "dialogue tags must differ")
	check(len(c.Dialogue.Seeds) > 0, "dialogue.seeds must contain at least one script")
	for i, s := range c.Dialogue.Seeds {
		check(len(s) > 0, "dialogue.seeds[%d] is empty", i)
	}

	check(c.Memory.HardCap > 0, "memory.hard_cap must be positive")
	check(c.Memory.RecentCap > 0, "memory.recent_cap must be positive")
	check(c.Memory.ReflectionThreshold > 0 && c.Memory.ReflectionThreshold < 1, "memory.reflection_threshold must be in (0, 1)")

	check(c.Visual.Radius >= 0 && c.Visual.Radius <= 45, "visual.radius must be in [0, 45]")

	check(c.API.Port >= 0 && c.API.Port < 65536, "api.port %d out of range", c.API.Port)

	check(len(c.Countries) > 0, "at least one country is required")
	seen := make(map[string]bool, len(c.Countries))
	for i, ct := range c.Countries {
		check(ct.ID != "" && ct.Name != "", "countries[%d] needs id and name", i)
		check(!seen[ct.ID], "duplicate country id %q", ct.ID)
		check(ct.Lat >= -90 && ct.Lat <= 90, "countries[%d] lat %v out of range [-90, 90]", i, ct.Lat)
		check(ct.Lon >= -180 && ct.Lon <= 180, "countries[%d] lon %v out of range [-180, 180]", i, ct.Lon)
		seen[ct.ID] = true
		if ct.TimeZone != "" {
			_, err := time.LoadLocation(ct.TimeZone)
			check(err == nil, "countries[%d] time zone %q: %v", i, ct.TimeZone, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RoleVoices maps configured voices onto roles.
func (c Config) RoleVoices() map[broadcast.Role]string {
	out := make(map[broadcast.Role]string, len(c.TTS.Voices))
	for k, v := range c.TTS.Voices {
		out[broadcast.Role(strings.ToUpper(k))] = v
	}
	return out
}
