// Package material turns host materials into shader resource bindings.
//
// A material's binding is created once every texture it references has
// finished loading. Textures that failed are replaced by the loader's
// fallback textures so the material still binds.
package material

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Faultbox/meshdelegate/internal/frame"
	"github.com/Faultbox/meshdelegate/internal/gpu"
	"github.com/Faultbox/meshdelegate/internal/pso"
	"github.com/Faultbox/meshdelegate/internal/scene"
	"github.com/Faultbox/meshdelegate/internal/texture"
	"github.com/Faultbox/meshdelegate/pkg/math"
)

// Shader texture slots, by scene slot name.
var slots = map[string]int{
	scene.SlotBaseColor: 0,
	scene.SlotNormal:    1,
	scene.SlotMetallic:  2,
	scene.SlotOcclusion: 3,
	scene.SlotEmissive:  4,
}

func slotKind(slot string) texture.Kind {
	switch slot {
	case scene.SlotNormal:
		return texture.KindNormal
	case scene.SlotBaseColor, scene.SlotEmissive:
		return texture.KindColor
	}
	return texture.KindData
}

type boundTexture struct {
	slot    int
	kind    texture.Kind
	handle  *texture.Handle
	sampler gpu.Sampler
}

// Material is a synced material.
type Material struct {
	ID string

	desc     scene.Material
	alpha    pso.AlphaMode
	features pso.Features
	textures []boundTexture
	binding  gpu.ResourceBinding
	version  uint64
}

// Version increases whenever the material or its binding changes.
func (m *Material) Version() uint64 { return m.version }

// Alpha returns the alpha mode.
func (m *Material) Alpha() pso.AlphaMode { return m.alpha }

// Features returns the shader features the material needs.
func (m *Material) Features() pso.Features { return m.features }

// BaseColor returns the base color factor.
func (m *Material) BaseColor() math.Vec4 { return m.desc.BaseColor }

// Ready reports whether the binding exists.
func (m *Material) Ready() bool { return m.binding != nil }

// Binding returns the shader resource binding, nil until Ready.
func (m *Material) Binding() gpu.ResourceBinding { return m.binding }

func (m *Material) release() {
	if m.binding != nil {
		m.binding.Release()
		m.binding = nil
	}
	for _, bt := range m.textures {
		if bt.sampler != nil {
			bt.sampler.Release()
		}
	}
	m.textures = nil
}

// Registry holds every synced material.
type Registry struct {
	dev         gpu.Device
	loader      *texture.Loader
	versions    *frame.Versions
	debugChecks bool
	log         *zap.Logger

	materials map[string]*Material
	byTexture map[*texture.Handle][]*Material
	def       *Material
}

// NewRegistry returns a registry with a ready default material. loader
// may be nil, in which case textures are ignored.
func NewRegistry(dev gpu.Device, loader *texture.Loader, versions *frame.Versions, debugChecks bool, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		dev:         dev,
		loader:      loader,
		versions:    versions,
		debugChecks: debugChecks,
		log:         log,
		materials:   make(map[string]*Material),
		byTexture:   make(map[*texture.Handle][]*Material),
	}
	r.def = &Material{ID: "default", desc: scene.Material{ID: "default", BaseColor: math.Vec4{0.8, 0.8, 0.8, 1}}}
	b, err := dev.CreateResourceBinding(gpu.BindingDesc{Label: "material/default"})
	if err != nil {
		return nil, fmt.Errorf("material: default binding: %w", err)
	}
	r.def.binding = b
	return r, nil
}

// Sync picks up new, changed and removed host materials.
func (r *Registry) Sync(host scene.Host) {
	ids := host.MaterialIDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
		m, ok := r.materials[id]
		if ok && !host.MaterialDirty(id) {
			continue
		}
		desc, _ := host.Material(id)
		if !ok {
			m = &Material{ID: id}
			r.materials[id] = m
		}
		r.set(m, desc)
		host.MarkMaterialClean(id)
	}
	for id, m := range r.materials {
		if !seen[id] {
			r.unlink(m)
			m.release()
			delete(r.materials, id)
			r.versions.Bump(frame.Material)
		}
	}
}

func (r *Registry) set(m *Material, desc scene.Material) {
	r.unlink(m)
	m.release()
	m.desc = desc

	alpha, ok := pso.ParseAlphaMode(desc.AlphaMode)
	if !ok {
		r.log.Warn("unknown alpha mode, using opaque", zap.String("material", m.ID), zap.String("alpha_mode", desc.AlphaMode))
	}
	m.alpha = alpha
	m.features = 0
	if desc.Clearcoat > 0 {
		m.features |= pso.FeatureClearcoat
	}
	if desc.TexCoordTransform {
		m.features |= pso.FeatureTexCoordTransform
	}

	if r.loader != nil {
		names := make([]string, 0, len(desc.Textures))
		for name := range desc.Textures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			slot, ok := slots[name]
			if !ok {
				r.log.Warn("unknown texture slot", zap.String("material", m.ID), zap.String("slot", name))
				continue
			}
			ref := desc.Textures[name]
			label := m.ID + "/" + name
			sampler, err := r.dev.CreateSampler(texture.SamplerDesc(label, ref.Sampler, r.log))
			if err != nil {
				r.log.Warn("sampler creation failed", zap.String("texture", label), zap.Error(err))
				continue
			}
			bt := boundTexture{slot: slot, kind: slotKind(name), sampler: sampler}
			bt.handle = r.loader.Request(ref.Path, bt.kind)
			m.textures = append(m.textures, bt)
			r.byTexture[bt.handle] = append(r.byTexture[bt.handle], m)
			switch name {
			case scene.SlotBaseColor:
				m.features |= pso.FeatureBaseColorTexture
			case scene.SlotNormal:
				m.features |= pso.FeatureNormalTexture
			}
		}
	}
	r.bind(m)
	r.touch(m)
}

func (r *Registry) unlink(m *Material) {
	for _, bt := range m.textures {
		users := r.byTexture[bt.handle]
		for i, u := range users {
			if u == m {
				users = append(users[:i], users[i+1:]...)
				break
			}
		}
		if len(users) == 0 {
			delete(r.byTexture, bt.handle)
		} else {
			r.byTexture[bt.handle] = users
		}
	}
}

func (r *Registry) touch(m *Material) {
	m.version++
	r.versions.Bump(frame.Material)
}

// bind creates the binding once no texture is still loading.
func (r *Registry) bind(m *Material) {
	desc := gpu.BindingDesc{Label: "material/" + m.ID}
	for _, bt := range m.textures {
		var tex gpu.Texture
		switch bt.handle.Status() {
		case texture.StatusLoading:
			return
		case texture.StatusReady:
			tex = bt.handle.Texture()
		default:
			fb, err := r.loader.Fallback(bt.kind)
			if err != nil {
				r.log.Warn("fallback texture unavailable", zap.String("material", m.ID), zap.Error(err))
				return
			}
			tex = fb
		}
		desc.Textures = append(desc.Textures, gpu.TextureBinding{Slot: bt.slot, Texture: tex, Sampler: bt.sampler})
	}
	b, err := r.dev.CreateResourceBinding(desc)
	if err != nil {
		r.log.Warn("binding creation failed", zap.String("material", m.ID), zap.Error(err))
		return
	}
	if m.binding != nil {
		m.binding.Release()
	}
	m.binding = b
}

// Update polls the texture loader and rebinds every material whose
// textures finished or reloaded. It returns how many materials changed.
func (r *Registry) Update() int {
	if r.loader == nil {
		return 0
	}
	changed := make(map[*Material]bool)
	for _, h := range r.loader.Poll() {
		for _, m := range r.byTexture[h] {
			changed[m] = true
		}
	}
	for m := range changed {
		r.bind(m)
		r.touch(m)
	}
	return len(changed)
}

// Get returns the material for id, or the default material when id is
// empty or unknown. With debug checks an unknown id panics.
func (r *Registry) Get(id string) *Material {
	if m, ok := r.materials[id]; ok {
		return m
	}
	if id != "" {
		if r.debugChecks {
			panic(fmt.Sprintf("material: unknown material %q", id))
		}
		r.log.Debug("unknown material, using default", zap.String("material", id))
	}
	return r.def
}

// Default returns the always-ready default material.
func (r *Registry) Default() *Material { return r.def }

// Pending returns the number of materials waiting on textures.
func (r *Registry) Pending() int {
	n := 0
	for _, m := range r.materials {
		if !m.Ready() {
			n++
		}
	}
	return n
}

// Len returns the number of synced materials.
func (r *Registry) Len() int { return len(r.materials) }

// Close releases every binding and sampler.
func (r *Registry) Close() error {
	for id, m := range r.materials {
		m.release()
		delete(r.materials, id)
	}
	r.byTexture = make(map[*texture.Handle][]*Material)
	if r.def.binding != nil {
		r.def.binding.Release()
		r.def.binding = nil
	}
	return nil
}
