// Package frame defines the decoded-frame model shared by the decoder,
// filter, and export stages, and the normalizer that flattens any supported
// representation into packed 8-bit RGB for the encoder subprocess.
package frame

import (
	"context"
	"fmt"
)

// SampleKind describes how plane samples are stored.
type SampleKind uint8

const (
	// SampleInteger means plane samples live in Plane.Ints, Bits wide.
	SampleInteger SampleKind = iota
	// SampleFloat means plane samples live in Plane.Floats, nominally [0,1].
	SampleFloat
)

// Layout describes the color representation of a frame's planes.
type Layout uint8

const (
	// LayoutRGB is planar RGB: plane 0=R, 1=G, 2=B (or a single gray plane).
	LayoutRGB Layout = iota
	// LayoutYUV is planar YUV: plane 0=Y, 1=U, 2=V, chroma possibly subsampled.
	LayoutYUV
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case LayoutRGB:
		return "rgb"
	case LayoutYUV:
		return "yuv"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Plane is one color channel's full 2D sample grid, row-major.
// Exactly one of Ints or Floats is populated, matching the frame's SampleKind.
type Plane struct {
	Width  int
	Height int
	Ints   []uint16
	Floats []float32
}

// Frame is one decoded image in its native color representation and bit
// depth. Plane 0 always has the frame's nominal Width x Height; chroma
// planes of a YUV frame may be smaller per the subsampling ratios.
type Frame struct {
	Width  int
	Height int
	Layout Layout
	Bits   int // sample width: 8, 10, 12 or 16
	Kind   SampleKind
	Planes []Plane
}

// NewRGB8 builds an 8-bit planar RGB frame from a packed RGB24 buffer
// (row-major, R,G,B per pixel). The buffer must hold exactly w*h*3 bytes.
func NewRGB8(w, h int, rgb []byte) (*Frame, error) {
	if len(rgb) != w*h*3 {
		return nil, fmt.Errorf("rgb buffer is %d bytes, want %d", len(rgb), w*h*3)
	}
	planes := make([]Plane, 3)
	for c := range planes {
		planes[c] = Plane{Width: w, Height: h, Ints: make([]uint16, w*h)}
	}
	for i := 0; i < w*h; i++ {
		planes[0].Ints[i] = uint16(rgb[i*3])
		planes[1].Ints[i] = uint16(rgb[i*3+1])
		planes[2].Ints[i] = uint16(rgb[i*3+2])
	}
	return &Frame{Width: w, Height: h, Layout: LayoutRGB, Bits: 8, Kind: SampleInteger, Planes: planes}, nil
}

// validate checks the structural invariants shared by every frame: positive
// dimensions, a nominal-size plane 0, and per-plane sample buffers whose
// length matches their declared geometry.
func (f *Frame) validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Planes) == 0 {
		return fmt.Errorf("frame has no planes")
	}
	if p := f.Planes[0]; p.Width != f.Width || p.Height != f.Height {
		return fmt.Errorf("plane 0 is %dx%d, want nominal %dx%d", p.Width, p.Height, f.Width, f.Height)
	}
	switch f.Bits {
	case 8, 10, 12, 16:
	default:
		return fmt.Errorf("unsupported sample width %d", f.Bits)
	}
	for i, p := range f.Planes {
		want := p.Width * p.Height
		switch f.Kind {
		case SampleInteger:
			if len(p.Ints) != want {
				return fmt.Errorf("plane %d has %d integer samples, want %d", i, len(p.Ints), want)
			}
		case SampleFloat:
			if len(p.Floats) != want {
				return fmt.Errorf("plane %d has %d float samples, want %d", i, len(p.Floats), want)
			}
		}
	}
	return nil
}

// Clip is an abstraction over a decoded (and possibly filter-transformed)
// video: frame count, dimensions, rate, and indexed frame access.
//
// GetFrame is only guaranteed to work for strictly increasing indexes;
// pipe-backed clips cannot seek backwards.
type Clip interface {
	NumFrames() int
	Width() int
	Height() int
	// FPS returns the frame rate as a rational.
	FPS() (num, den int)
	GetFrame(ctx context.Context, index int) (*Frame, error)
	Close() error
}
