package pso

import (
	"fmt"
	"strings"
)

// Semantic tells the shader what a vertex stream holds.
type Semantic uint8

// Stream semantics. Streams without one are bound but unused by the
// built-in shaders.
const (
	SemanticNone Semantic = iota
	SemanticPosition
	SemanticNormal
	SemanticTexCoord
	SemanticColor
	SemanticJoints
	SemanticWeights
)

var semanticNames = [...]string{"", "POSITION", "NORMAL", "TEXCOORD", "COLOR", "JOINTS", "WEIGHTS"}

func (s Semantic) String() string {
	if int(s) < len(semanticNames) {
		return semanticNames[s]
	}
	return ""
}

// Defines returns the shader preprocessor symbols for key. Each stream
// with a semantic defines ATTR_<SEMANTIC> as its shader location.
func Defines(key Key, streams []Stream) []string {
	var out []string
	for i, name := range featureNames {
		if key.Features&(1<<i) != 0 {
			out = append(out, "FEATURE_"+strings.ToUpper(name))
		}
	}
	switch key.Alpha {
	case AlphaMask:
		out = append(out, "ALPHA_MASK")
	case AlphaBlend:
		out = append(out, "ALPHA_BLEND")
	}
	switch key.Debug {
	case DebugNormals:
		out = append(out, "DEBUG_NORMALS")
	case DebugTexCoords:
		out = append(out, "DEBUG_TEXCOORDS")
	case DebugVertexColor:
		out = append(out, "DEBUG_VERTEX_COLOR")
	}
	if key.Shadows {
		out = append(out, "SHADOWS")
	}
	seen := make(map[Semantic]bool)
	for i, s := range streams {
		if s.Semantic == SemanticNone || seen[s.Semantic] {
			continue
		}
		seen[s.Semantic] = true
		out = append(out, fmt.Sprintf("ATTR_%s %d", s.Semantic, i))
	}
	return out
}
