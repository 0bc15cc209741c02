// Package main is an interactive viewer that renders a YAML scene through
// the render delegate on OpenGL.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/delegate"
	"github.com/Faultbox/meshdelegate/internal/gpu/gldev"
	"github.com/Faultbox/meshdelegate/internal/logger"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/renderpass"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/viewer"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

var clearColor = math.Vec4{0.12, 0.12, 0.14, 1}

func main() {
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := config.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: delegateview [flags] <scene.yaml>")
		os.Exit(1)
	}

	if err := run(cfg, args[0]); err != nil {
		logger.Error("viewer error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("viewer closed normally")
}

func run(cfg *config.Config, scenePath string) error {
	host, err := scene.LoadFile(scenePath)
	if err != nil {
		return err
	}
	if cfg.Texture.Root == "" {
		cfg.Texture.Root = filepath.Dir(scenePath)
	}

	win, err := viewer.NewWindow("delegateview - "+filepath.Base(scenePath), cfg.Window, logger.Named("window"))
	if err != nil {
		return err
	}
	defer win.Close()

	dev, err := gldev.New(logger.Named("gl"))
	if err != nil {
		return err
	}
	d, err := delegate.New(cfg, dev, logger.Named("delegate"))
	if err != nil {
		return err
	}
	defer d.Close()

	params, err := d.DefaultParams()
	if err != nil {
		return err
	}
	pass := d.NewRenderPass(params)
	d.Selection().Set(host.Selected()...)

	cam := viewer.NewOrbitCamera()
	input := viewer.NewInput()
	fitted := false
	var last renderpass.Status = -1

	for {
		if input.Update() {
			return nil
		}
		for _, ev := range input.Events() {
			switch ev.Type {
			case viewer.EventDrag:
				cam.HandleDrag(ev.DX, ev.DY)
			case viewer.EventScroll:
				cam.HandleZoom(ev.DY)
			case viewer.EventClick:
				w, h := win.PointSize()
				ray := viewer.ScreenToRay(ev.X, ev.Y, float32(w), float32(h), cam.ViewProjection(float32(w)/float32(h)).Inverse())
				if id, ok := viewer.Pick(ray, d.MeshIDs(), d.WorldBounds); ok {
					d.Selection().Set(id)
					logger.Info("selected", zap.String("prim", id))
				} else {
					d.Selection().Set()
				}
			case viewer.EventKeyDown:
				if ev.Key == sdl.SCANCODE_ESCAPE {
					return nil
				}
				if ev.Key == sdl.SCANCODE_F {
					cam.FitBounds(d.Bounds())
				}
				params = handleKey(ev.Key, params)
				pass.SetParams(params)
			}
		}

		ctx := dev.NewCommandContext()
		if err := d.Sync(host); err != nil {
			return err
		}
		if err := d.Commit(ctx); err != nil {
			return err
		}
		if !fitted {
			cam.FitBounds(d.Bounds())
			fitted = true
		}

		w, h := win.Size()
		if h == 0 {
			h = 1
		}
		dev.BeginFrame(w, h, clearColor)
		dev.SetViewProjection(cam.ViewProjection(float32(w) / float32(h)))
		res, err := d.Render(ctx, pass)
		if err != nil {
			return err
		}
		if err := ctx.Flush(); err != nil {
			logger.Warn("frame flush failed", zap.Error(err))
		}
		if res.Status != last {
			last = res.Status
			win.SetTitle(fmt.Sprintf("delegateview - %s [%s, %s]", filepath.Base(scenePath), params.RenderMode, res.Status))
		}
		win.SwapBuffers()
	}
}

// handleKey maps number keys to render modes and debug views.
func handleKey(key sdl.Scancode, p renderpass.Params) renderpass.Params {
	switch key {
	case sdl.SCANCODE_1:
		p.RenderMode = pso.ModeSolid
	case sdl.SCANCODE_2:
		p.RenderMode = pso.ModeEdges
	case sdl.SCANCODE_3:
		p.RenderMode = pso.ModePoints
	case sdl.SCANCODE_N:
		p.DebugView = toggle(p.DebugView, pso.DebugNormals)
	case sdl.SCANCODE_T:
		p.DebugView = toggle(p.DebugView, pso.DebugTexCoords)
	case sdl.SCANCODE_C:
		p.DebugView = toggle(p.DebugView, pso.DebugVertexColor)
	case sdl.SCANCODE_S:
		p.Shadows = !p.Shadows
	case sdl.SCANCODE_U:
		p.Selection = (p.Selection + 1) % 3
	}
	return p
}

func toggle(cur, v pso.DebugView) pso.DebugView {
	if cur == v {
		return pso.DebugNone
	}
	return v
}
