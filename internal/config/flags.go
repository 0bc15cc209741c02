package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging and invariant checks")
	flagRenderMode = flag.String("render-mode", "", "Render mode: solid, edges or points")
	flagDebugView  = flag.String("debug-view", "", "Debug view: none, normals, texcoords or vertex_color")
	flagNoFallback = flag.Bool("no-fallback", false, "Skip passes instead of drawing with the fallback pipeline")
	flagWatch      = flag.Bool("watch", false, "Reload textures when their files change")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Render.DebugChecks = true
	}
	if *flagRenderMode != "" {
		cfg.Render.RenderMode = *flagRenderMode
	}
	if *flagDebugView != "" {
		cfg.Render.DebugView = *flagDebugView
	}
	if *flagNoFallback {
		cfg.Render.UseFallbackPSO = false
	}
	if *flagWatch {
		cfg.Texture.Watch = true
	}
	if *flagWindowed {
		cfg.Window.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Window.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Window.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Window.Height = *flagHeight
	}
}
