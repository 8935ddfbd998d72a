package render

import "math"

// Camera is a pinhole camera
type Camera struct {
	origin     Vec3
	lowerLeft  Vec3
	horizontal Vec3
	vertical   Vec3
}

// NewCamera creates a camera at lookFrom facing lookAt with the given
// vertical field of view in degrees
func NewCamera(lookFrom, lookAt, up Vec3, vfov, aspect float64) *Camera {
	h := math.Tan(vfov * math.Pi / 360)
	viewHeight := 2 * h
	viewWidth := aspect * viewHeight

	w := lookFrom.Sub(lookAt).Unit()
	u := up.Cross(w).Unit()
	v := w.Cross(u)

	horizontal := u.Scale(viewWidth)
	vertical := v.Scale(viewHeight)
	lowerLeft := lookFrom.
		Sub(horizontal.Scale(0.5)).
		Sub(vertical.Scale(0.5)).
		Sub(w)

	return &Camera{
		origin:     lookFrom,
		lowerLeft:  lowerLeft,
		horizontal: horizontal,
		vertical:   vertical,
	}
}

// DefaultCamera frames DefaultScene for the given aspect ratio
func DefaultCamera(aspect float64) *Camera {
	return NewCamera(V(0, 0.35, 1.2), V(0, 0, -1.3), V(0, 1, 0), 45, aspect)
}

// Ray returns the ray through viewport coordinates u, v in [0, 1] with v = 0
// at the bottom edge
func (c *Camera) Ray(u, v float64) Ray {
	target := c.lowerLeft.Add(c.horizontal.Scale(u)).Add(c.vertical.Scale(v))
	return Ray{Origin: c.origin, Direction: target.Sub(c.origin)}
}
