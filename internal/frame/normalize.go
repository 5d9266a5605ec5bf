package frame

import (
	"fmt"
	"math"
)

// neutralChroma is the bias point of 8-bit chroma samples; a plane filled
// with it carries no color information.
const neutralChroma = 128

// Normalize converts a decoded frame into packed 8-bit interleaved RGB
// triplets, row-major, exactly Width*Height*3 bytes. It is pure and
// deterministic: no I/O, a fresh buffer per call.
//
// Samples wider than 8 bits are right-shifted down; float samples are
// clamped to [0,1] and rounded to [0,255]. The rescale is one-directional
// and lossy. YUV input is converted with the ITU-R BT.601 full-range matrix
// after nearest-neighbor chroma upsampling; absent or degenerate chroma
// planes are replaced with neutral chroma.
func Normalize(f *Frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	switch f.Layout {
	case LayoutRGB:
		return normalizeRGB(f)
	case LayoutYUV:
		return normalizeYUV(f)
	default:
		return nil, fmt.Errorf("normalize: unsupported layout %s", f.Layout)
	}
}

func normalizeRGB(f *Frame) ([]byte, error) {
	var r, g, b []byte
	switch len(f.Planes) {
	case 3:
		r = plane8(f, 0)
		g = plane8(f, 1)
		b = plane8(f, 2)
	case 1:
		// Monochrome-as-RGB: replicate the single plane into all channels.
		r = plane8(f, 0)
		g, b = r, r
	default:
		return nil, fmt.Errorf("normalize: rgb frame has %d planes, want 1 or 3", len(f.Planes))
	}

	out := make([]byte, f.Width*f.Height*3)
	for i := 0; i < f.Width*f.Height; i++ {
		out[i*3] = r[i]
		out[i*3+1] = g[i]
		out[i*3+2] = b[i]
	}
	return out, nil
}

func normalizeYUV(f *Frame) ([]byte, error) {
	y := plane8(f, 0)

	var u, v []byte
	if len(f.Planes) >= 3 {
		u = upsampleChroma(f, 1)
		v = upsampleChroma(f, 2)
	}
	if u == nil || v == nil {
		// Absent or degenerate chroma: synthesize neutral chroma matching
		// the luma's shape so the result is a faithful grayscale.
		flat := make([]byte, f.Width*f.Height)
		for i := range flat {
			flat[i] = neutralChroma
		}
		u, v = flat, flat
	}

	out := make([]byte, f.Width*f.Height*3)
	for i := 0; i < f.Width*f.Height; i++ {
		r, g, b := yuvToRGB(y[i], u[i], v[i])
		out[i*3] = r
		out[i*3+1] = g
		out[i*3+2] = b
	}
	return out, nil
}

// plane8 rescales one plane's samples to 8 bits.
func plane8(f *Frame, idx int) []byte {
	p := f.Planes[idx]
	out := make([]byte, p.Width*p.Height)

	if f.Kind == SampleFloat {
		for i, s := range p.Floats {
			x := float64(s)
			if x < 0 {
				x = 0
			} else if x > 1 {
				x = 1
			}
			out[i] = byte(math.Round(x * 255))
		}
		return out
	}

	shift := uint(f.Bits - 8)
	for i, s := range p.Ints {
		out[i] = byte(s >> shift)
	}
	return out
}

// upsampleChroma rescales a chroma plane to 8 bits and replicates each
// sample into an rh x rw block (nearest neighbor), cropped to exactly the
// luma dimensions. Returns nil when the plane has zero extent, in which
// case the caller falls back to neutral chroma.
func upsampleChroma(f *Frame, idx int) []byte {
	p := f.Planes[idx]
	if p.Width <= 0 || p.Height <= 0 {
		return nil
	}

	src := plane8(f, idx)
	if p.Width == f.Width && p.Height == f.Height {
		return src
	}

	rh := f.Height / p.Height
	if rh < 1 {
		rh = 1
	}
	rw := f.Width / p.Width
	if rw < 1 {
		rw = 1
	}

	out := make([]byte, f.Width*f.Height)
	for row := 0; row < f.Height; row++ {
		cy := row / rh
		if cy >= p.Height {
			cy = p.Height - 1
		}
		for col := 0; col < f.Width; col++ {
			cx := col / rw
			if cx >= p.Width {
				cx = p.Width - 1
			}
			out[row*f.Width+col] = src[cy*p.Width+cx]
		}
	}
	return out
}

// yuvToRGB converts one 8-bit YUV sample to RGB using the BT.601 full-range
// matrix. Components are clamped to [0,255] and truncated.
func yuvToRGB(y, u, v byte) (r, g, b byte) {
	yf := float64(y)
	uf := float64(u) - 128
	vf := float64(v) - 128

	return clamp255(yf + 1.402*vf),
		clamp255(yf - 0.344136*uf - 0.714136*vf),
		clamp255(yf + 1.772*uf)
}

func clamp255(x float64) byte {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x)
}
