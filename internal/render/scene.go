package render

import "math"

// shadowBias lifts shadow rays off the surface they start on
const shadowBias = 1e-4

// Ray is a half-line from Origin along Direction
type Ray struct {
	Origin    Vec3
	Direction Vec3
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Hit describes a ray-sphere intersection
type Hit struct {
	T      float64
	Point  Vec3
	Normal Vec3
	Albedo Vec3
}

// Sphere is a diffuse sphere
type Sphere struct {
	Center Vec3
	Radius float64
	Albedo Vec3
}

// Intersect returns the nearest hit with t in (tMin, tMax)
func (s Sphere) Intersect(r Ray, tMin, tMax float64) (Hit, bool) {
	oc := r.Origin.Sub(s.Center)
	a := r.Direction.Dot(r.Direction)
	halfB := oc.Dot(r.Direction)
	c := oc.Dot(oc) - s.Radius*s.Radius

	disc := halfB*halfB - a*c
	if disc < 0 {
		return Hit{}, false
	}
	sq := math.Sqrt(disc)

	t := (-halfB - sq) / a
	if t <= tMin || t >= tMax {
		t = (-halfB + sq) / a
		if t <= tMin || t >= tMax {
			return Hit{}, false
		}
	}

	p := r.At(t)
	return Hit{
		T:      t,
		Point:  p,
		Normal: p.Sub(s.Center).Scale(1 / s.Radius),
		Albedo: s.Albedo,
	}, true
}

// Light is a point light
type Light struct {
	Position  Vec3
	Intensity float64
}

// Scene is a set of spheres lit by one point light
type Scene struct {
	Spheres []Sphere
	Light   Light

	// Ambient is the fraction of albedo visible without direct light
	Ambient float64

	// Horizon and Zenith are blended for rays that miss everything
	Horizon Vec3
	Zenith  Vec3
}

// DefaultScene returns the demo scene: three spheres on a large ground sphere
func DefaultScene() *Scene {
	return &Scene{
		Spheres: []Sphere{
			{Center: V(0, -1000.5, -1), Radius: 1000, Albedo: V(0.55, 0.55, 0.5)},
			{Center: V(0, 0, -1.2), Radius: 0.5, Albedo: V(0.8, 0.25, 0.2)},
			{Center: V(-1.05, 0, -1.5), Radius: 0.5, Albedo: V(0.2, 0.45, 0.8)},
			{Center: V(1.05, 0, -1.5), Radius: 0.5, Albedo: V(0.3, 0.75, 0.3)},
		},
		Light:   Light{Position: V(-2, 4, 1), Intensity: 1.1},
		Ambient: 0.12,
		Horizon: V(1, 1, 1),
		Zenith:  V(0.5, 0.7, 1),
	}
}

// Intersect returns the nearest hit along r
func (s *Scene) Intersect(r Ray, tMin, tMax float64) (Hit, bool) {
	var nearest Hit
	found := false
	for _, sphere := range s.Spheres {
		if h, ok := sphere.Intersect(r, tMin, tMax); ok {
			tMax = h.T
			nearest = h
			found = true
		}
	}
	return nearest, found
}

// occluded reports whether anything lies between p and the light
func (s *Scene) occluded(p, toLight Vec3, dist float64) bool {
	shadow := Ray{Origin: p, Direction: toLight}
	for _, sphere := range s.Spheres {
		if _, ok := sphere.Intersect(shadow, shadowBias, dist); ok {
			return true
		}
	}
	return false
}

// Shade returns the linear color seen along r
func (s *Scene) Shade(r Ray) Vec3 {
	h, ok := s.Intersect(r, shadowBias, math.Inf(1))
	if !ok {
		t := 0.5 * (r.Direction.Unit().Y + 1)
		return s.Horizon.Lerp(s.Zenith, t)
	}

	light := s.Ambient
	toLight := s.Light.Position.Sub(h.Point)
	dist := toLight.Length()
	dir := toLight.Scale(1 / dist)
	if lambert := h.Normal.Dot(dir); lambert > 0 {
		origin := h.Point.Add(h.Normal.Scale(shadowBias))
		if !s.occluded(origin, dir, dist) {
			light += lambert * s.Light.Intensity
		}
	}
	return h.Albedo.Scale(light)
}
