// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/particles/gpu"
)

// cameraDistance places the implicit camera on +Z looking at the
// origin, far enough out that the initial particle clusters fit the
// frame.
const cameraDistance = 1500.0

// presenter is a ring of RGBA back buffers. Draws rasterize points on
// the queue worker; Present flips on the host, matching how a swap
// chain advances its back-buffer index at the call site. Encoders
// capture the index when a draw is recorded, so a draw still in the
// queue lands in the buffer it was recorded against.
type presenter struct {
	label      string
	width      uint32
	height     uint32
	count      uint32
	frameIndex uint32
	frames     []*image.RGBA
	presented  uint64
}

func newPresenter(desc *gpu.PresenterDescriptor) *presenter {
	count := desc.BufferCount
	if count == 0 {
		count = 2
	}
	p := &presenter{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		count:  count,
		frames: make([]*image.RGBA, count),
	}
	for i := range p.frames {
		p.frames[i] = image.NewRGBA(image.Rect(0, 0, int(desc.Width), int(desc.Height)))
	}
	return p
}

// FrameIndex implements gpu.Presenter.
func (p *presenter) FrameIndex() uint32 { return p.frameIndex }

// BufferCount implements gpu.Presenter.
func (p *presenter) BufferCount() uint32 { return p.count }

// TearingSupported implements gpu.Presenter.
func (p *presenter) TearingSupported() bool { return true }

// Present implements gpu.Presenter.
func (p *presenter) Present(vsync, allowTearing bool) error {
	p.frameIndex = (p.frameIndex + 1) % p.count
	p.presented++
	return nil
}

// Destroy implements gpu.Presenter.
func (p *presenter) Destroy() {
	p.frames = nil
}

// draw rasterizes a point list into the back buffer the draw was
// recorded against, with a pinhole projection and additive intensity.
// Runs on the queue worker, never concurrently with itself.
func (p *presenter) draw(desc *gpu.DrawDescriptor, frameIndex uint32) error {
	src, ok := desc.Positions.(*buffer)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	stride := uint64(desc.Stride)
	if stride == 0 || uint64(desc.Count)*stride > src.Size() {
		return gpu.ErrOutOfRange
	}

	frame := p.frames[frameIndex%p.count]
	clear := color.RGBA{R: 4, G: 4, B: 10, A: 255}
	for y := 0; y < frame.Rect.Dy(); y++ {
		for x := 0; x < frame.Rect.Dx(); x++ {
			frame.SetRGBA(x, y, clear)
		}
	}

	w := float32(p.width)
	h := float32(p.height)
	focal := h
	vp := desc.ViewProj
	hasVP := vp != [16]float32{}
	intensity := desc.Intensity
	if intensity == 0 {
		intensity = 1
	}
	radius := int(desc.Size / 2)
	for i := uint64(0); i < uint64(desc.Count); i++ {
		off := i * stride
		px := readFloat32(src.data, off)
		py := readFloat32(src.data, off+4)
		pz := readFloat32(src.data, off+8)
		fade := readFloat32(src.data, off+12)

		var sx, sy int
		if hasVP {
			cx := vp[0]*px + vp[1]*py + vp[2]*pz + vp[3]
			cy := vp[4]*px + vp[5]*py + vp[6]*pz + vp[7]
			cw := vp[12]*px + vp[13]*py + vp[14]*pz + vp[15]
			if cw <= 0 {
				continue
			}
			sx = int(w / 2 * (1 + cx/cw))
			sy = int(h / 2 * (1 - cy/cw))
		} else {
			depth := cameraDistance - pz
			if depth < 1 {
				continue
			}
			sx = int(w/2 + px*focal/depth)
			sy = int(h/2 - py*focal/depth)
		}
		glow := intensity * math32.Min(math32.Max(fade, 0), 1)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				x, y := sx+dx, sy+dy
				if x < 0 || y < 0 || x >= int(p.width) || y >= int(p.height) {
					continue
				}
				p.accumulate(frame, x, y, glow)
			}
		}
	}
	return nil
}

func (p *presenter) accumulate(frame *image.RGBA, x, y int, glow float32) {
	add := uint32(glow * 255)
	c := frame.RGBAAt(x, y)
	c.R = saturate(uint32(c.R) + add)
	c.G = saturate(uint32(c.G) + add/2)
	c.B = saturate(uint32(c.B) + add)
	frame.SetRGBA(x, y, c)
}

func saturate(v uint32) uint8 {
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func readFloat32(data []byte, off uint64) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
}

// FrontBuffer returns the most recently presented frame of a virtual
// presenter. Callers drain the presenting queue first so the draw has
// retired. Debug hook for headless capture; returns ok=false for
// presenters of other backends.
func FrontBuffer(gp gpu.Presenter) (*image.RGBA, bool) {
	p, ok := gp.(*presenter)
	if !ok || len(p.frames) == 0 {
		return nil, false
	}
	front := (p.frameIndex + p.count - 1) % p.count
	return p.frames[front], true
}
