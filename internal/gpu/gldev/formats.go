package gldev

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/gogpu/gputypes"
)

// attribFormat is the VertexAttribPointer form of a vertex format.
type attribFormat struct {
	size    int32
	xtype   uint32
	integer bool
}

func vertexFormat(f gputypes.VertexFormat) (attribFormat, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return attribFormat{1, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x2:
		return attribFormat{2, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x3:
		return attribFormat{3, gl.FLOAT, false}, nil
	case gputypes.VertexFormatFloat32x4:
		return attribFormat{4, gl.FLOAT, false}, nil
	case gputypes.VertexFormatSint32:
		return attribFormat{1, gl.INT, true}, nil
	case gputypes.VertexFormatSint32x2:
		return attribFormat{2, gl.INT, true}, nil
	case gputypes.VertexFormatSint32x3:
		return attribFormat{3, gl.INT, true}, nil
	case gputypes.VertexFormatSint32x4:
		return attribFormat{4, gl.INT, true}, nil
	}
	return attribFormat{}, fmt.Errorf("gldev: unsupported vertex format %v", f)
}

func topology(t gputypes.PrimitiveTopology) uint32 {
	switch t {
	case gputypes.PrimitiveTopologyLineList:
		return gl.LINES
	case gputypes.PrimitiveTopologyPointList:
		return gl.POINTS
	}
	return gl.TRIANGLES
}

func indexFormat(f gputypes.IndexFormat) (xtype uint32, size int64) {
	if f == gputypes.IndexFormatUint16 {
		return gl.UNSIGNED_SHORT, 2
	}
	return gl.UNSIGNED_INT, 4
}

func addressMode(m gputypes.AddressMode) int32 {
	switch m {
	case gputypes.AddressModeClampToEdge:
		return gl.CLAMP_TO_EDGE
	case gputypes.AddressModeMirrorRepeat:
		return gl.MIRRORED_REPEAT
	}
	return gl.REPEAT
}

func minFilter(f gputypes.FilterMode, mipmaps bool) int32 {
	switch {
	case f == gputypes.FilterModeNearest && mipmaps:
		return gl.NEAREST_MIPMAP_NEAREST
	case f == gputypes.FilterModeNearest:
		return gl.NEAREST
	case mipmaps:
		return gl.LINEAR_MIPMAP_LINEAR
	}
	return gl.LINEAR
}

func magFilter(f gputypes.FilterMode) int32 {
	if f == gputypes.FilterModeNearest {
		return gl.NEAREST
	}
	return gl.LINEAR
}

func internalFormat(f gputypes.TextureFormat) int32 {
	if f == gputypes.TextureFormatRGBA8UnormSrgb {
		return gl.SRGB8_ALPHA8
	}
	return gl.RGBA8
}
