// Package config handles render delegate configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all render delegate settings.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Pool    PoolConfig    `yaml:"pool"`
	Texture TextureConfig `yaml:"texture"`
	PSO     PSOConfig     `yaml:"pso"`
	Window  WindowConfig  `yaml:"window"`
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig holds render pass settings.
type RenderConfig struct {
	RenderMode        string `yaml:"render_mode"` // solid, edges or points
	DebugView         string `yaml:"debug_view"`  // none, normals, texcoords or vertex_color
	Shadows           bool   `yaml:"shadows"`
	UseFallbackPSO    bool   `yaml:"use_fallback_pso"`
	ConstantRingBytes int    `yaml:"constant_ring_bytes"`
	JointRingBytes    int    `yaml:"joint_ring_bytes"`
	MaxMultiDraw      int    `yaml:"max_multi_draw"`
	DebugChecks       bool   `yaml:"debug_checks"` // panic on broken invariants
}

// PoolConfig holds geometry pool sizing.
type PoolConfig struct {
	InitialVertices int   `yaml:"initial_vertices"`
	InitialIndices  int   `yaml:"initial_indices"`
	MaxBufferBytes  int64 `yaml:"max_buffer_bytes"`
	AllowReuse      bool  `yaml:"allow_reuse"`
}

// TextureConfig holds texture loader settings.
type TextureConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	MemoryBudgetMB int    `yaml:"memory_budget_mb"`
	Watch          bool   `yaml:"watch"` // reload textures when their files change
	Root           string `yaml:"root"`  // base directory for relative texture paths
}

// PSOConfig holds pipeline state cache settings.
type PSOConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// WindowConfig holds display settings for the viewer.
type WindowConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			RenderMode:        "solid",
			DebugView:         "none",
			UseFallbackPSO:    true,
			ConstantRingBytes: 64 << 10,
			JointRingBytes:    64 << 10,
			MaxMultiDraw:      256,
		},
		Pool: PoolConfig{
			InitialVertices: 4096,
			InitialIndices:  16384,
			MaxBufferBytes:  256 << 20,
			AllowReuse:      true,
		},
		Texture: TextureConfig{
			Workers:        2,
			QueueSize:      64,
			MemoryBudgetMB: 256,
		},
		PSO: PSOConfig{
			CacheSize: 128,
		},
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the settings the delegate cannot run without.
func (c *Config) Validate() error {
	switch c.Render.RenderMode {
	case "solid", "edges", "points":
	default:
		return fmt.Errorf("%w: render.render_mode %q", ErrInvalid, c.Render.RenderMode)
	}
	switch c.Render.DebugView {
	case "none", "normals", "texcoords", "vertex_color":
	default:
		return fmt.Errorf("%w: render.debug_view %q", ErrInvalid, c.Render.DebugView)
	}
	positive := []struct {
		name string
		v    int64
	}{
		{"render.constant_ring_bytes", int64(c.Render.ConstantRingBytes)},
		{"render.joint_ring_bytes", int64(c.Render.JointRingBytes)},
		{"render.max_multi_draw", int64(c.Render.MaxMultiDraw)},
		{"pool.initial_vertices", int64(c.Pool.InitialVertices)},
		{"pool.initial_indices", int64(c.Pool.InitialIndices)},
		{"pool.max_buffer_bytes", c.Pool.MaxBufferBytes},
		{"texture.workers", int64(c.Texture.Workers)},
		{"texture.queue_size", int64(c.Texture.QueueSize)},
		{"texture.memory_budget_mb", int64(c.Texture.MemoryBudgetMB)},
		{"pso.cache_size", int64(c.PSO.CacheSize)},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, p.name, p.v)
		}
	}
	return nil
}
