package texture

import (
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// ParseWrap maps a wrap token to an address mode. "black" has no border
// color support and clamps to the edge. Unknown tokens report false and
// repeat.
func ParseWrap(token string) (gputypes.AddressMode, bool) {
	switch token {
	case "", "repeat", "useMetadata":
		return gputypes.AddressModeRepeat, true
	case "clamp", "black":
		return gputypes.AddressModeClampToEdge, true
	case "mirror":
		return gputypes.AddressModeMirrorRepeat, true
	}
	return gputypes.AddressModeRepeat, false
}

// Filter is a parsed filter token.
type Filter struct {
	Min     gputypes.FilterMode
	Mag     gputypes.FilterMode
	Mipmaps bool
}

// ParseFilter maps a minification filter token. Unknown tokens report
// false and use trilinear filtering.
func ParseFilter(token string) (Filter, bool) {
	lin, near := gputypes.FilterModeLinear, gputypes.FilterModeNearest
	switch token {
	case "", "linearMipmapLinear":
		return Filter{Min: lin, Mag: lin, Mipmaps: true}, true
	case "linear":
		return Filter{Min: lin, Mag: lin}, true
	case "nearest":
		return Filter{Min: near, Mag: near}, true
	case "linearMipmapNearest":
		return Filter{Min: lin, Mag: lin, Mipmaps: true}, true
	case "nearestMipmapNearest", "nearestMipmapLinear":
		return Filter{Min: near, Mag: near, Mipmaps: true}, true
	}
	return Filter{Min: lin, Mag: lin, Mipmaps: true}, false
}

// SamplerTokens are the authored sampling settings of a texture.
type SamplerTokens struct {
	WrapS     string `yaml:"wrap_s"`
	WrapT     string `yaml:"wrap_t"`
	MinFilter string `yaml:"min_filter"`
	MagFilter string `yaml:"mag_filter"`
}

// SamplerDesc resolves tokens into a sampler description, logging every
// token that falls back to its default.
func SamplerDesc(label string, tok SamplerTokens, log *zap.Logger) gpu.SamplerDesc {
	u, ok := ParseWrap(tok.WrapS)
	if !ok {
		log.Warn("unknown wrap token, using repeat", zap.String("texture", label), zap.String("wrap_s", tok.WrapS))
	}
	v, ok := ParseWrap(tok.WrapT)
	if !ok {
		log.Warn("unknown wrap token, using repeat", zap.String("texture", label), zap.String("wrap_t", tok.WrapT))
	}
	minF, ok := ParseFilter(tok.MinFilter)
	if !ok {
		log.Warn("unknown filter token, using linear", zap.String("texture", label), zap.String("min_filter", tok.MinFilter))
	}
	magF, ok := ParseFilter(tok.MagFilter)
	if !ok {
		log.Warn("unknown filter token, using linear", zap.String("texture", label), zap.String("mag_filter", tok.MagFilter))
	}
	return gpu.SamplerDesc{
		Label:        label,
		AddressModeU: u,
		AddressModeV: v,
		MinFilter:    minF.Min,
		MagFilter:    magF.Mag,
		Mipmaps:      minF.Mipmaps,
	}
}
