// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/chewxy/math32"
)

// Camera produces the view-projection matrix bound for each draw. The
// default orbits the origin at a fixed distance, matching the particle
// cloud's spread.
type Camera struct {
	Eye    [3]float32
	At     [3]float32
	Up     [3]float32
	FOV    float32 // vertical field of view, radians
	Aspect float32
	Near   float32
	Far    float32
}

// NewCamera returns a camera looking at the origin from +Z.
func NewCamera(width, height uint32) *Camera {
	return &Camera{
		Eye:    [3]float32{0, 0, 1500},
		At:     [3]float32{0, 0, 0},
		Up:     [3]float32{0, 1, 0},
		FOV:    math32.Pi / 4,
		Aspect: float32(width) / float32(height),
		Near:   1,
		Far:    5000,
	}
}

// Orbit rotates the eye around the Y axis by angle radians.
func (c *Camera) Orbit(angle float32) {
	x, z := c.Eye[0], c.Eye[2]
	sin, cos := math32.Sin(angle), math32.Cos(angle)
	c.Eye[0] = x*cos + z*sin
	c.Eye[2] = -x*sin + z*cos
}

// ViewProj returns the combined view-projection matrix in row-major
// order.
func (c *Camera) ViewProj() [16]float32 {
	return mul(perspective(c.FOV, c.Aspect, c.Near, c.Far), lookAt(c.Eye, c.At, c.Up))
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func normalize(v [3]float32) [3]float32 {
	n := math32.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	return [3]float32{v[0] / n, v[1] / n, v[2] / n}
}

func lookAt(eye, at, up [3]float32) [16]float32 {
	z := normalize(sub(eye, at))
	x := normalize(cross(up, z))
	y := cross(z, x)
	return [16]float32{
		x[0], x[1], x[2], -dot(x, eye),
		y[0], y[1], y[2], -dot(y, eye),
		z[0], z[1], z[2], -dot(z, eye),
		0, 0, 0, 1,
	}
}

func perspective(fov, aspect, near, far float32) [16]float32 {
	f := 1 / math32.Tan(fov/2)
	d := near - far
	return [16]float32{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (near + far) / d, 2 * near * far / d,
		0, 0, -1, 0,
	}
}

// mul returns a*b for row-major 4x4 matrices.
func mul(a, b [16]float32) [16]float32 {
	var out [16]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[r*4+k] * b[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}
