// meshtool inspects YAML scenes and runs them through the render delegate
// without a GPU.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Faultbox/meshdelegate/internal/config"
	"github.com/Faultbox/meshdelegate/internal/delegate"
	"github.com/Faultbox/meshdelegate/internal/gpu/nulldev"
	"github.com/Faultbox/meshdelegate/internal/logger"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/pkg/primvar"
	"github.com/Faultbox/meshdelegate/pkg/topology"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "stats":
		cmdStats(args)
	case "triangulate", "tri":
		cmdTriangulate(args)
	case "frames", "run":
		cmdFrames(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshtool - render delegate scene utility

Usage:
  meshtool <command> [options]

Commands:
  stats <scene.yaml>                 Show mesh and material counts
  triangulate <scene.yaml> [mesh]    Print triangles and subset ranges
  frames <scene.yaml>                Render frames on the null device
  config [path]                      Write the default config file

Examples:
  meshtool stats cube.yaml
  meshtool triangulate cube.yaml /cube
  meshtool frames -n 10 -mode edges cube.yaml`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadScene(path string) *scene.Memory {
	host, err := scene.LoadFile(path)
	if err != nil {
		fatal(err)
	}
	return host
}

func cmdStats(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool stats <scene.yaml>")
		os.Exit(1)
	}
	host := loadScene(args[0])

	fmt.Printf("Scene:     %s\n", args[0])
	fmt.Printf("Meshes:    %d\n", len(host.MeshIDs()))
	fmt.Printf("Materials: %d\n", len(host.MaterialIDs()))
	fmt.Println()

	var faces, tris int
	for _, id := range host.MeshIDs() {
		topo := host.Topology(id)
		faces += len(topo.FaceVertexCounts)
		tris += topo.NumTriangles()

		status := "ok"
		if err := topo.Validate(); err != nil {
			status = err.Error()
		}
		fmt.Printf("  %-30s faces=%-6d points=%-6d triangles=%-6d subsets=%-3d %s\n",
			id, len(topo.FaceVertexCounts), topo.PointCount(), topo.NumTriangles(), len(topo.Subsets), status)
	}
	fmt.Println()
	fmt.Printf("Faces:     %d\n", faces)
	fmt.Printf("Triangles: %d\n", tris)
}

func cmdTriangulate(args []string) {
	fs := flag.NewFlagSet("triangulate", flag.ExitOnError)
	faceVarying := fs.Bool("fv", false, "Emit face-varying indices")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool triangulate [-fv] <scene.yaml> [mesh]")
		os.Exit(1)
	}
	if err := logger.Init("warn", ""); err != nil {
		fatal(err)
	}
	defer logger.Sync()
	host := loadScene(fs.Arg(0))

	ids := host.MeshIDs()
	if fs.NArg() > 1 {
		ids = []string{fs.Arg(1)}
	}
	for _, id := range ids {
		topo := host.Topology(id)
		proc := topology.NewProcessor(topo, logger.Named("topology"))
		// points enable ear clipping of concave faces
		points, _ := primvar.Vec3s(host.Primvar(id, "points"))
		if len(points) < topo.PointCount() {
			points = nil
		}
		tris, ranges := proc.Triangulate(!*faceVarying, points)

		fmt.Printf("%s: %d triangles\n", id, len(tris))
		for i, r := range ranges {
			fmt.Printf("  subset %d: triangles %d..%d\n", i, r.StartTriangle(), r.StartTriangle()+r.TriangleCount())
		}
		for i, t := range tris {
			fmt.Printf("  %4d: %d %d %d\n", i, t[0], t[1], t[2])
		}
		edges := proc.ComputeEdgeIndices(!*faceVarying, false)
		fmt.Printf("  edges: %d\n", len(edges)/2)
	}
}

func cmdFrames(args []string) {
	fs := flag.NewFlagSet("frames", flag.ExitOnError)
	n := fs.Int("n", 3, "Number of frames")
	mode := fs.String("mode", "solid", "Render mode: solid, edges or points")
	cfgPath := fs.String("config", "", "Path to config file")
	compile := fs.Int("compile-frames", 1, "Frames a pipeline takes to compile")
	verbose := fs.Bool("v", false, "Debug logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool frames [-n N] [-mode M] <scene.yaml>")
		os.Exit(1)
	}
	scenePath := fs.Arg(0)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(*cfgPath); err != nil {
			fatal(err)
		}
	}
	cfg.Render.RenderMode = *mode
	if cfg.Texture.Root == "" {
		cfg.Texture.Root = filepath.Dir(scenePath)
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(level, ""); err != nil {
		fatal(err)
	}
	defer logger.Sync()

	host := loadScene(scenePath)
	dev := nulldev.New(nulldev.WithCompileFrames(*compile))
	d, err := delegate.New(cfg, dev, logger.Named("delegate"))
	if err != nil {
		fatal(err)
	}
	defer d.Close()

	params, err := d.DefaultParams()
	if err != nil {
		fatal(err)
	}
	pass := d.NewRenderPass(params)
	d.Selection().Set(host.Selected()...)

	fmt.Printf("%-6s %-10s %6s %6s %6s %6s %8s %8s\n", "frame", "status", "items", "draws", "calls", "psos", "flushes", "fallback")
	for i := 0; i < *n; i++ {
		ctx := nulldev.NewContext()
		if err := d.Sync(host); err != nil {
			fatal(err)
		}
		if err := d.Commit(ctx); err != nil {
			fatal(err)
		}
		res, err := d.Render(ctx, pass)
		if err != nil {
			fatal(err)
		}
		s := res.Stats
		fmt.Printf("%-6d %-10s %6d %6d %6d %6d %8d %8d\n",
			i, res.Status, s.Items, s.Draws, s.DrawCalls, s.PipelineBinds, s.RingFlushes, s.FallbackDraws)
		dev.AdvanceFrame()
	}

	st := d.Stats()
	fmt.Println()
	fmt.Printf("Meshes: %d  Draw items: %d  Materials: %d  Pipelines: %d  Pending textures: %d\n",
		st.Meshes, st.DrawItems, st.Materials, st.Pipelines, st.PendingTextures)
	sort.Slice(st.Pool, func(i, j int) bool { return st.Pool[i].Bytes > st.Pool[j].Bytes })
	for _, a := range st.Pool {
		fmt.Printf("  %-16s streams=%d used=%d/%d allocations=%d bytes=%d\n",
			a.Layout, a.Streams, a.Used, a.Capacity, a.Allocations, a.Bytes)
	}
}

func cmdConfig(args []string) {
	cfg := config.Default()
	var err error
	path := filepath.Join(config.ConfigDir(), config.FileName)
	if len(args) > 0 {
		path = args[0]
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", path)
}
