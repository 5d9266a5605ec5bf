package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yuv8 builds an 8-bit integer YUV frame from per-plane sample grids.
func yuv8(w, h int, y []uint16, chromaW, chromaH int, u, v []uint16) *Frame {
	f := &Frame{
		Width:  w,
		Height: h,
		Layout: LayoutYUV,
		Bits:   8,
		Kind:   SampleInteger,
		Planes: []Plane{{Width: w, Height: h, Ints: y}},
	}
	if u != nil {
		f.Planes = append(f.Planes,
			Plane{Width: chromaW, Height: chromaH, Ints: u},
			Plane{Width: chromaW, Height: chromaH, Ints: v},
		)
	}
	return f
}

func flat(n int, value uint16) []uint16 {
	s := make([]uint16, n)
	for i := range s {
		s[i] = value
	}
	return s
}

func TestNormalizeOutputSize(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"single pixel", 1, 1},
		{"sd ntsc", 720, 480},
		{"odd dimensions", 7, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := yuv8(tt.w, tt.h, flat(tt.w*tt.h, 128), tt.w, tt.h, flat(tt.w*tt.h, 128), flat(tt.w*tt.h, 128))
			out, err := Normalize(f)
			require.NoError(t, err)
			assert.Len(t, out, tt.w*tt.h*3)
		})
	}
}

func TestNormalizeGrayPoint(t *testing.T) {
	// Neutral chroma must round-trip luma into equal RGB components.
	const w, h = 4, 4
	f := yuv8(w, h, flat(w*h, 235), w, h, flat(w*h, 128), flat(w*h, 128))

	out, err := Normalize(f)
	require.NoError(t, err)

	for i := 0; i < w*h; i++ {
		assert.Equal(t, byte(235), out[i*3])
		assert.Equal(t, byte(235), out[i*3+1])
		assert.Equal(t, byte(235), out[i*3+2])
	}
}

func TestNormalizeBT601RedSample(t *testing.T) {
	// Y=0, U=90, V=240:
	//   R = 0 + 1.402*(240-128)            = 157.024 -> 157
	//   G = 0 - 0.344136*(90-128) - 0.714136*(240-128) = -66.9 -> clamp 0
	//   B = 0 + 1.772*(90-128)             = -67.3 -> clamp 0
	f := yuv8(1, 1, []uint16{0}, 1, 1, []uint16{90}, []uint16{240})

	out, err := Normalize(f)
	require.NoError(t, err)

	assert.Equal(t, []byte{157, 0, 0}, out)
}

func TestNormalizeChromaUpsample420(t *testing.T) {
	// 4x4 luma with 2x2 chroma: each 2x2 luma block derives from one chroma
	// sample and must share its hue contribution.
	const w, h = 4, 4
	u := []uint16{100, 200, 50, 150}
	v := flat(4, 128)
	f := yuv8(w, h, flat(w*h, 128), 2, 2, u, v)

	out, err := Normalize(f)
	require.NoError(t, err)

	blue := func(x, y int) byte { return out[(y*w+x)*3+2] }
	for by := 0; by < 2; by++ {
		for bx := 0; bx < 2; bx++ {
			want := blue(bx*2, by*2)
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					assert.Equal(t, want, blue(bx*2+dx, by*2+dy),
						"pixel (%d,%d) disagrees with its chroma block", bx*2+dx, by*2+dy)
				}
			}
		}
	}

	// Spot-check the actual matrix value for the top-left block: V neutral,
	// so B = 128 + 1.772*(100-128) = 78.38 -> 78.
	assert.Equal(t, byte(78), blue(0, 0))
}

func TestNormalizeMissingChromaIsNeutral(t *testing.T) {
	f := yuv8(2, 2, []uint16{0, 64, 128, 255}, 0, 0, nil, nil)

	out, err := Normalize(f)
	require.NoError(t, err)

	// Neutral chroma: pure grayscale.
	for i, want := range []byte{0, 64, 128, 255} {
		assert.Equal(t, want, out[i*3])
		assert.Equal(t, want, out[i*3+1])
		assert.Equal(t, want, out[i*3+2])
	}
}

func TestNormalizeZeroExtentChromaFallsBack(t *testing.T) {
	f := yuv8(2, 2, flat(4, 200), 0, 0, nil, nil)
	f.Planes = append(f.Planes,
		Plane{Width: 0, Height: 2, Ints: []uint16{}},
		Plane{Width: 0, Height: 2, Ints: []uint16{}},
	)

	out, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, byte(200), out[0])
	assert.Equal(t, byte(200), out[1])
	assert.Equal(t, byte(200), out[2])
}

func TestNormalizeHighBitDepthRescale(t *testing.T) {
	// 10-bit samples shift right by 2; never upscaled.
	f := yuv8(2, 1, []uint16{1023, 512}, 2, 1, flat(2, 512), flat(2, 512))
	f.Bits = 10

	out, err := Normalize(f)
	require.NoError(t, err)

	// 1023>>2=255, 512>>2=128; chroma 512>>2=128 is neutral.
	assert.Equal(t, byte(255), out[0])
	assert.Equal(t, byte(128), out[3])
}

func TestNormalizeFloatRescale(t *testing.T) {
	f := &Frame{
		Width: 2, Height: 1,
		Layout: LayoutYUV,
		Bits:   8,
		Kind:   SampleFloat,
		Planes: []Plane{
			{Width: 2, Height: 1, Floats: []float32{1.5, -0.25}}, // out of range, clamp
			{Width: 2, Height: 1, Floats: []float32{0.501961, 0.501961}},
			{Width: 2, Height: 1, Floats: []float32{0.501961, 0.501961}},
		},
	}

	out, err := Normalize(f)
	require.NoError(t, err)

	// round(0.501961*255) = 128 -> neutral chroma, grayscale result.
	assert.Equal(t, byte(255), out[0])
	assert.Equal(t, byte(0), out[3])
}

func TestNormalizeMonochromeRGBReplicates(t *testing.T) {
	f := &Frame{
		Width: 2, Height: 1,
		Layout: LayoutRGB,
		Bits:   8,
		Kind:   SampleInteger,
		Planes: []Plane{{Width: 2, Height: 1, Ints: []uint16{10, 20}}},
	}

	out, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 10, 10, 20, 20, 20}, out)
}

func TestNormalizeRGBThreePlanes(t *testing.T) {
	rgb := []byte{1, 2, 3, 4, 5, 6}
	f, err := NewRGB8(2, 1, rgb)
	require.NoError(t, err)

	out, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, rgb, out)
}

func TestNormalizeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"no planes", &Frame{Width: 2, Height: 2, Bits: 8}},
		{"zero dimensions", &Frame{Width: 0, Height: 2, Bits: 8, Planes: []Plane{{}}}},
		{"short plane 0", &Frame{
			Width: 2, Height: 2, Bits: 8, Layout: LayoutYUV,
			Planes: []Plane{{Width: 2, Height: 2, Ints: []uint16{1}}},
		}},
		{"bad bit depth", &Frame{
			Width: 1, Height: 1, Bits: 9, Layout: LayoutYUV,
			Planes: []Plane{{Width: 1, Height: 1, Ints: []uint16{1}}},
		}},
		{"two rgb planes", &Frame{
			Width: 1, Height: 1, Bits: 8, Layout: LayoutRGB,
			Planes: []Plane{
				{Width: 1, Height: 1, Ints: []uint16{1}},
				{Width: 1, Height: 1, Ints: []uint16{1}},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.frame)
			assert.Error(t, err)
		})
	}
}
