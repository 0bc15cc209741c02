package pso

import (
	"fmt"

	"github.com/gogpu/gputypes"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/gpu"
)

// Stream describes one vertex buffer bound to a pipeline.
type Stream struct {
	Name     string
	Format   gputypes.VertexFormat
	Stride   uint64
	Semantic Semantic
}

// Layouts returns one single-attribute buffer layout per stream, with
// shader locations in stream order.
func Layouts(streams []Stream) []gputypes.VertexBufferLayout {
	out := make([]gputypes.VertexBufferLayout, len(streams))
	for i, s := range streams {
		out[i] = gputypes.VertexBufferLayout{
			ArrayStride: s.Stride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: s.Format, Offset: 0, ShaderLocation: uint32(i)},
			},
		}
	}
	return out
}

// FallbackStreams is the position-only layout of fallback pipelines.
var FallbackStreams = []Stream{{Name: "points", Format: gputypes.VertexFormatFloat32x3, Stride: 12, Semantic: SemanticPosition}}

// Cache creates pipelines on first use and keeps the most recently used
// ones. Evicted pipelines are released. A pipeline used in the current
// frame is never evicted: when every slot is taken by this frame's
// pipelines the cache doubles instead. Fallback pipelines are created up
// front, one per render mode, and never evicted.
type Cache struct {
	dev      gpu.Device
	lru      *lru.Cache
	size     int
	frame    uint64
	used     map[Key]uint64 // frame of last Get
	fallback [3]gpu.PipelineState
	log      *zap.Logger
	created  int
}

// NewCache returns a cache holding at most size pipelines and starts
// compiling the fallback pipelines.
func NewCache(dev gpu.Device, size int, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{dev: dev, log: log, size: size, used: make(map[Key]uint64)}
	l, err := lru.NewWithEvict(size, func(key, value interface{}) {
		log.Debug("pipeline evicted", zap.Stringer("key", key.(Key)))
		delete(c.used, key.(Key))
		value.(gpu.PipelineState).Release()
	})
	if err != nil {
		return nil, fmt.Errorf("pso: %w", err)
	}
	c.lru = l

	for _, mode := range []RenderMode{ModeSolid, ModeEdges, ModePoints} {
		key := FallbackKey(mode)
		p, err := dev.CreatePipelineState(c.desc(key, FallbackStreams))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("pso: fallback %s: %w", mode, err), c.Close())
		}
		c.fallback[mode] = p
	}
	return c, nil
}

// FallbackKey is the reduced feature key used while real pipelines or
// textures are not ready.
func FallbackKey(mode RenderMode) Key {
	return Key{
		Alpha:  AlphaOpaque,
		Cull:   gputypes.CullModeNone,
		Mode:   mode,
		Layout: "12",
	}
}

func (c *Cache) desc(key Key, streams []Stream) gpu.PipelineDesc {
	d := gpu.PipelineDesc{
		Label:     key.String(),
		ShaderKey: key.ShaderKey(),
		Primitive: gputypes.PrimitiveState{
			Topology: key.Mode.Topology(),
			CullMode: key.Cull,
		},
		VertexBuffers: Layouts(streams),
		Defines:       Defines(key, streams),
		DepthWrite:    true,
	}
	if key.Alpha == AlphaBlend {
		blend := gputypes.BlendStatePremultiplied()
		d.Blend = &blend
		d.DepthWrite = false
	}
	return d
}

// Get returns the pipeline for key, creating it when missing. The
// returned pipeline may still be compiling.
func (c *Cache) Get(key Key, streams []Stream) (gpu.PipelineState, error) {
	if v, ok := c.lru.Get(key); ok {
		c.used[key] = c.frame
		return v.(gpu.PipelineState), nil
	}
	p, err := c.dev.CreatePipelineState(c.desc(key, streams))
	if err != nil {
		return nil, fmt.Errorf("pso: create %s: %w", key, err)
	}
	c.created++
	c.log.Debug("pipeline created", zap.Stringer("key", key))
	c.makeRoom()
	c.lru.Add(key, p)
	c.used[key] = c.frame
	return p, nil
}

// makeRoom grows the cache when the next Add would evict a pipeline the
// current frame already uses.
func (c *Cache) makeRoom() {
	if c.lru.Len() < c.size {
		return
	}
	oldest, _, ok := c.lru.GetOldest()
	if !ok || c.used[oldest.(Key)] != c.frame {
		return
	}
	c.size *= 2
	c.lru.Resize(c.size)
	c.log.Warn("pipeline cache too small for one frame, growing",
		zap.Int("size", c.size))
}

// BeginFrame starts a new frame. Pipelines used in earlier frames become
// evictable again.
func (c *Cache) BeginFrame() { c.frame++ }

// Size returns the current capacity, which grows past the configured size
// when one frame needs more pipelines.
func (c *Cache) Size() int { return c.size }

// Fallback returns the always-resident pipeline for mode.
func (c *Cache) Fallback(mode RenderMode) gpu.PipelineState {
	if int(mode) >= len(c.fallback) {
		return nil
	}
	return c.fallback[mode]
}

// Len returns the number of cached pipelines, not counting fallbacks.
func (c *Cache) Len() int { return c.lru.Len() }

// Created returns how many pipelines Get has created.
func (c *Cache) Created() int { return c.created }

// Close releases every pipeline.
func (c *Cache) Close() error {
	if c.lru != nil {
		c.lru.Purge()
	}
	for i, p := range c.fallback {
		if p != nil {
			p.Release()
			c.fallback[i] = nil
		}
	}
	return nil
}
