// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"testing"

	"github.com/chewxy/math32"
)

// project runs a point through the camera's view-projection and
// returns normalized device coordinates.
func project(vp [16]float32, x, y, z float32) (nx, ny, nw float32) {
	cx := vp[0]*x + vp[1]*y + vp[2]*z + vp[3]
	cy := vp[4]*x + vp[5]*y + vp[6]*z + vp[7]
	cw := vp[12]*x + vp[13]*y + vp[14]*z + vp[15]
	if cw == 0 {
		return 0, 0, 0
	}
	return cx / cw, cy / cw, cw
}

func TestViewProjCentersOrigin(t *testing.T) {
	c := NewCamera(640, 480)
	nx, ny, nw := project(c.ViewProj(), 0, 0, 0)
	if nw <= 0 {
		t.Fatalf("origin w = %v, want > 0 (in front of camera)", nw)
	}
	if math32.Abs(nx) > 1e-5 || math32.Abs(ny) > 1e-5 {
		t.Errorf("origin projects to (%v, %v), want screen center", nx, ny)
	}
}

func TestViewProjOrientation(t *testing.T) {
	c := NewCamera(640, 480)
	vp := c.ViewProj()

	nx, _, nw := project(vp, 100, 0, 0)
	if nw <= 0 || nx <= 0 {
		t.Errorf("+X projects to nx = %v (w = %v), want right of center", nx, nw)
	}
	_, ny, nw := project(vp, 0, 100, 0)
	if nw <= 0 || ny <= 0 {
		t.Errorf("+Y projects to ny = %v (w = %v), want above center", ny, nw)
	}
}

func TestViewProjRejectsBehindCamera(t *testing.T) {
	c := NewCamera(640, 480)
	_, _, nw := project(c.ViewProj(), 0, 0, 3000)
	if nw > 0 {
		t.Errorf("point behind the eye has w = %v, want <= 0", nw)
	}
}

func TestOrbitPreservesDistance(t *testing.T) {
	c := NewCamera(640, 480)
	before := math32.Sqrt(dot(c.Eye, c.Eye))
	c.Orbit(0.7)
	after := math32.Sqrt(dot(c.Eye, c.Eye))
	if math32.Abs(before-after) > 1e-2 {
		t.Errorf("orbit changed eye distance: %v -> %v", before, after)
	}
}

func TestOrbitQuarterTurn(t *testing.T) {
	c := NewCamera(640, 480)
	c.Orbit(math32.Pi / 2)
	if math32.Abs(c.Eye[0]-1500) > 1e-2 || math32.Abs(c.Eye[2]) > 1e-2 {
		t.Errorf("eye after quarter turn = %v, want (1500, 0, ~0)", c.Eye)
	}
}
