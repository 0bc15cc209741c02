package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Render.RenderMode != "solid" {
		t.Errorf("expected render mode solid, got %s", cfg.Render.RenderMode)
	}
	if cfg.Render.ConstantRingBytes != 65536 {
		t.Errorf("expected constant ring 65536, got %d", cfg.Render.ConstantRingBytes)
	}
	if cfg.Render.MaxMultiDraw != 256 {
		t.Errorf("expected max multi draw 256, got %d", cfg.Render.MaxMultiDraw)
	}
	if !cfg.Render.UseFallbackPSO {
		t.Error("expected fallback PSO to be enabled by default")
	}
	if cfg.Render.DebugChecks {
		t.Error("expected debug checks to be off by default")
	}

	if cfg.Pool.InitialVertices != 4096 || cfg.Pool.InitialIndices != 16384 {
		t.Errorf("unexpected pool sizes %+v", cfg.Pool)
	}
	if !cfg.Pool.AllowReuse {
		t.Error("expected pool reuse to be allowed by default")
	}

	if cfg.Texture.Workers != 2 {
		t.Errorf("expected 2 texture workers, got %d", cfg.Texture.Workers)
	}
	if cfg.PSO.CacheSize != 128 {
		t.Errorf("expected PSO cache 128, got %d", cfg.PSO.CacheSize)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, FileName)

	yamlContent := `
render:
  render_mode: edges
  debug_view: normals
  shadows: true
  constant_ring_bytes: 4096
  debug_checks: true

pool:
  initial_vertices: 128
  allow_reuse: false

texture:
  workers: 4
  watch: true
  root: "assets"

logging:
  level: "debug"
  log_file: "delegate.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Render.RenderMode != "edges" {
		t.Errorf("expected render mode edges, got %s", cfg.Render.RenderMode)
	}
	if cfg.Render.DebugView != "normals" {
		t.Errorf("expected debug view normals, got %s", cfg.Render.DebugView)
	}
	if !cfg.Render.Shadows || !cfg.Render.DebugChecks {
		t.Error("expected shadows and debug checks to be enabled")
	}
	if cfg.Render.ConstantRingBytes != 4096 {
		t.Errorf("expected constant ring 4096, got %d", cfg.Render.ConstantRingBytes)
	}
	// untouched keys keep their defaults
	if cfg.Render.JointRingBytes != 65536 {
		t.Errorf("expected joint ring default, got %d", cfg.Render.JointRingBytes)
	}

	if cfg.Pool.InitialVertices != 128 || cfg.Pool.AllowReuse {
		t.Errorf("unexpected pool config %+v", cfg.Pool)
	}
	if cfg.Texture.Workers != 4 || !cfg.Texture.Watch || cfg.Texture.Root != "assets" {
		t.Errorf("unexpected texture config %+v", cfg.Texture)
	}
	if cfg.Logging.LogFile != "delegate.log" {
		t.Errorf("expected log file 'delegate.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")

	invalidYAML := `
render:
  max_multi_draw: not a number
  invalid syntax here
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if err := loadFromFile(Default(), "/nonexistent/path/delegate.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") = %v", err)
	}
	if cfg.Render.RenderMode != "solid" {
		t.Errorf("expected defaults, got %+v", cfg.Render)
	}

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("render:\n  render_mode: wireframe\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"render mode", func(c *Config) { c.Render.RenderMode = "hidden" }},
		{"debug view", func(c *Config) { c.Render.DebugView = "depth" }},
		{"constant ring", func(c *Config) { c.Render.ConstantRingBytes = 0 }},
		{"multi draw", func(c *Config) { c.Render.MaxMultiDraw = -1 }},
		{"pool bytes", func(c *Config) { c.Pool.MaxBufferBytes = 0 }},
		{"workers", func(c *Config) { c.Texture.Workers = 0 }},
		{"pso cache", func(c *Config) { c.PSO.CacheSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("render:\n  shadows: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Errorf("expected to find %s in current directory", FileName)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
				if !cfg.Render.DebugChecks {
					t.Error("expected debug checks with debug flag")
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "render mode flag",
			setup: func() { *flagRenderMode = "points" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Render.RenderMode != "points" {
					t.Errorf("expected render mode points, got %s", cfg.Render.RenderMode)
				}
			},
			teardown: func() { *flagRenderMode = "" },
		},
		{
			name:  "no fallback flag",
			setup: func() { *flagNoFallback = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Render.UseFallbackPSO {
					t.Error("expected fallback PSO to be disabled")
				}
			},
			teardown: func() { *flagNoFallback = false },
		},
		{
			name:  "watch flag",
			setup: func() { *flagWatch = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Texture.Watch {
					t.Error("expected texture watch to be enabled")
				}
			},
			teardown: func() { *flagWatch = false },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Window.Width != 2560 || cfg.Window.Height != 1440 {
					t.Errorf("expected 2560x1440, got %dx%d", cfg.Window.Width, cfg.Window.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)

	yamlContent := `
render:
  render_mode: edges
window:
  width: 1600
  height: 900
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Window.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Window.Width)
	}
	if cfg.Window.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Window.Height)
	}
	if cfg.Render.RenderMode != "edges" {
		t.Errorf("expected render mode from file, got %s", cfg.Render.RenderMode)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.Render.Shadows = true

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got := Default()
	if err := loadFromFile(got, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Render.Shadows {
		t.Error("saved setting was not written")
	}
}
