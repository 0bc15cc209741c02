// Package pso builds and caches pipeline state objects for draw items.
package pso

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gogpu/gputypes"
)

// Features are the shader capabilities a draw needs.
type Features uint32

// Feature flags.
const (
	FeatureNormals Features = 1 << iota
	FeatureTexCoords
	FeatureJoints
	FeatureVertexColor
	FeatureBaseColorTexture
	FeatureNormalTexture
	FeatureClearcoat
	FeatureTexCoordTransform
)

var featureNames = []string{
	"normals", "texcoords", "joints", "vertex_color",
	"base_color_tex", "normal_tex", "clearcoat", "texcoord_transform",
}

// Has reports whether every flag in f2 is set.
func (f Features) Has(f2 Features) bool { return f&f2 == f2 }

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// AlphaMode is how a material's alpha is applied.
type AlphaMode uint8

// Alpha modes.
const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// ParseAlphaMode parses opaque, mask or blend. Unknown tokens return
// AlphaOpaque and false.
func ParseAlphaMode(s string) (AlphaMode, bool) {
	switch s {
	case "", "opaque":
		return AlphaOpaque, true
	case "mask":
		return AlphaMask, true
	case "blend", "translucent":
		return AlphaBlend, true
	}
	return AlphaOpaque, false
}

func (a AlphaMode) String() string {
	switch a {
	case AlphaMask:
		return "mask"
	case AlphaBlend:
		return "blend"
	}
	return "opaque"
}

// RenderMode selects the primitive type a pass draws.
type RenderMode uint8

// Render modes.
const (
	ModeSolid RenderMode = iota
	ModeEdges
	ModePoints
)

// ParseRenderMode parses solid, edges or points.
func ParseRenderMode(s string) (RenderMode, error) {
	switch s {
	case "", "solid":
		return ModeSolid, nil
	case "edges", "wireframe":
		return ModeEdges, nil
	case "points":
		return ModePoints, nil
	}
	return ModeSolid, fmt.Errorf("pso: unknown render mode %q", s)
}

func (m RenderMode) String() string {
	switch m {
	case ModeEdges:
		return "edges"
	case ModePoints:
		return "points"
	}
	return "solid"
}

// Topology returns the primitive topology drawn in mode m.
func (m RenderMode) Topology() gputypes.PrimitiveTopology {
	switch m {
	case ModeEdges:
		return gputypes.PrimitiveTopologyLineList
	case ModePoints:
		return gputypes.PrimitiveTopologyPointList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// DebugView replaces shading with a visualization of one attribute.
type DebugView uint8

// Debug views.
const (
	DebugNone DebugView = iota
	DebugNormals
	DebugTexCoords
	DebugVertexColor
)

// ParseDebugView parses none, normals, texcoords or vertex_color.
func ParseDebugView(s string) (DebugView, error) {
	switch s {
	case "", "none":
		return DebugNone, nil
	case "normals":
		return DebugNormals, nil
	case "texcoords":
		return DebugTexCoords, nil
	case "vertex_color":
		return DebugVertexColor, nil
	}
	return DebugNone, fmt.Errorf("pso: unknown debug view %q", s)
}

// Key identifies a pipeline state. Equal keys share one pipeline.
type Key struct {
	Features Features
	Alpha    AlphaMode
	Cull     gputypes.CullMode
	Mode     RenderMode
	Debug    DebugView
	Shadows  bool
	// Layout is the vertex stream layout key, for example "12,12,8".
	Layout string
}

// ShaderKey hashes the fields that select a shader permutation.
func (k Key) ShaderKey() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%d/%d/%d/%t", k.Features, k.Alpha, k.Mode, k.Debug, k.Shadows)
	return h.Sum64()
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/cull=%d/debug=%d/layout=%s", k.Mode, k.Alpha, k.Features, k.Cull, k.Debug, k.Layout)
}
