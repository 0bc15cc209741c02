package viewer

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/meshdelegate/pkg/math"
)

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	Distance  float32
	RotationX float32 // pitch, radians
	RotationY float32 // yaw, radians

	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	DragSensitivity float32
	ZoomSensitivity float32
	FOV             float32
}

// NewOrbitCamera returns a camera looking at the origin.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        5,
		RotationX:       0.5,
		MinDistance:     0.01,
		MaxDistance:     1e5,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		FOV:             math32.Pi / 4,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() math.Vec3 {
	cx, sx := math32.Cos(c.RotationX), math32.Sin(c.RotationX)
	cy, sy := math32.Cos(c.RotationY), math32.Sin(c.RotationY)
	return c.Center.Add(math.Vec3{X: cx * sy, Y: sx, Z: cx * cy}.Scale(c.Distance))
}

// ViewMatrix returns the view matrix.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Y: 1})
}

// ViewProjection returns projection times view for the given aspect.
func (c *OrbitCamera) ViewProjection(aspect float32) math.Mat4 {
	near := c.Distance * 0.01
	far := c.Distance * 100
	return math.Perspective(c.FOV, aspect, near, far).Mul(c.ViewMatrix())
}

// HandleDrag rotates by a mouse drag delta in pixels.
func (c *OrbitCamera) HandleDrag(dx, dy float32) {
	c.RotationY -= dx * c.DragSensitivity
	c.RotationX += dy * c.DragSensitivity
	c.RotationX = math32.Max(c.MinPitch, math32.Min(c.MaxPitch, c.RotationX))
}

// HandleZoom moves closer for positive wheel deltas.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = math32.Max(c.MinDistance, math32.Min(c.MaxDistance, c.Distance))
}

// FitBounds centers the camera on b at a distance that shows all of it.
func (c *OrbitCamera) FitBounds(b math.Bounds) {
	if b.IsEmpty() {
		return
	}
	c.Center = b.Center()
	radius := b.Size().Length() / 2
	if radius == 0 {
		radius = 1
	}
	c.Distance = radius / math32.Sin(c.FOV/2)
	c.RotationX = 0.5
	c.RotationY = 0
}
