// Package pipeline assembles the per-file enhancement flow: decode, filter
// chain, normalization, and streaming export, with stage-level progress.
package pipeline

import (
	"context"
	"math"
	"sort"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/frame"
)

// Filter is one enhancement stage. It wraps a clip and returns a clip with
// the stage applied lazily per frame.
type Filter interface {
	Name() string
	Apply(clip frame.Clip) frame.Clip
}

// BuildChain assembles the enhancement stages for one input in their fixed
// order. Deinterlacing is included only for interlaced sources; the other
// stages are gated by their configuration.
func BuildChain(cfg config.FiltersConfig, interlaced bool) []Filter {
	var chain []Filter
	if interlaced {
		chain = append(chain, &deinterlaceFilter{blend: cfg.DeinterlacePreset == "Blend"})
	}
	if cfg.DenoiseStrength > 0 && cfg.DenoiseRadius > 0 {
		chain = append(chain, &denoiseFilter{strength: clamp01(cfg.DenoiseStrength), radius: cfg.DenoiseRadius})
	}
	if cfg.SharpenStrength > 0 {
		chain = append(chain, &sharpenFilter{strength: clamp01(cfg.SharpenStrength)})
	}
	if cfg.DeflickerStrength > 0 && cfg.DeflickerRadius > 0 {
		chain = append(chain, &deflickerFilter{strength: clamp01(cfg.DeflickerStrength), radius: cfg.DeflickerRadius})
	}
	if cfg.Gamma != 1.0 || cfg.AutoContrast || cfg.AutoWhiteBalance {
		chain = append(chain, &colorFilter{
			gamma:        cfg.Gamma,
			autoContrast: cfg.AutoContrast,
			whiteBalance: cfg.AutoWhiteBalance,
		})
	}
	// Artifact cleanup runs last so its median pass smooths whatever the
	// earlier stages amplified.
	if cfg.CleanupArtifacts && cfg.ArtifactStrength > 0 {
		chain = append(chain, &cleanupFilter{strength: clamp01(cfg.ArtifactStrength)})
	}
	return chain
}

// ApplyChain wraps clip with every filter in order.
func ApplyChain(clip frame.Clip, chain []Filter) frame.Clip {
	for _, f := range chain {
		clip = f.Apply(clip)
	}
	return clip
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// filterable reports whether a frame carries samples the integer filter
// math understands. Anything else passes through untouched.
func filterable(f *frame.Frame) bool {
	return f != nil && f.Kind == frame.SampleInteger && f.Bits == 8
}

func cloneFrame(f *frame.Frame) *frame.Frame {
	out := &frame.Frame{
		Width:  f.Width,
		Height: f.Height,
		Layout: f.Layout,
		Bits:   f.Bits,
		Kind:   f.Kind,
		Planes: make([]frame.Plane, len(f.Planes)),
	}
	for i, p := range f.Planes {
		np := frame.Plane{Width: p.Width, Height: p.Height}
		if p.Ints != nil {
			np.Ints = append([]uint16(nil), p.Ints...)
		}
		if p.Floats != nil {
			np.Floats = append([]float32(nil), p.Floats...)
		}
		out.Planes[i] = np
	}
	return out
}

func clampSample(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint16(v + 0.5)
}

// mapClip applies a pure per-frame transform.
type mapClip struct {
	frame.Clip
	fn func(*frame.Frame) *frame.Frame
}

func (c *mapClip) GetFrame(ctx context.Context, index int) (*frame.Frame, error) {
	f, err := c.Clip.GetFrame(ctx, index)
	if err != nil {
		return nil, err
	}
	if !filterable(f) {
		return f, nil
	}
	return c.fn(f), nil
}

// windowClip applies a temporal transform over frames [i-radius, i+radius],
// clamped at the clip edges. It keeps a sliding cache of source frames so a
// strictly forward-only source (the pipe decoder) can serve overlapping
// windows; centers must be requested in increasing order.
type windowClip struct {
	frame.Clip
	radius int
	fn     func(window []*frame.Frame, center *frame.Frame) *frame.Frame

	cache   map[int]*frame.Frame
	fetched int // highest source index fetched so far, -1 initially
}

func newWindowClip(src frame.Clip, radius int, fn func([]*frame.Frame, *frame.Frame) *frame.Frame) *windowClip {
	return &windowClip{Clip: src, radius: radius, fn: fn, cache: map[int]*frame.Frame{}, fetched: -1}
}

func (c *windowClip) GetFrame(ctx context.Context, index int) (*frame.Frame, error) {
	last := c.NumFrames() - 1
	hi := index + c.radius
	if hi > last {
		hi = last
	}
	for j := c.fetched + 1; j <= hi; j++ {
		f, err := c.Clip.GetFrame(ctx, j)
		if err != nil {
			return nil, err
		}
		c.cache[j] = f
		c.fetched = j
	}
	for j := range c.cache {
		if j < index-c.radius {
			delete(c.cache, j)
		}
	}

	center := c.cache[index]
	if !filterable(center) {
		return center, nil
	}

	window := make([]*frame.Frame, 0, 2*c.radius+1)
	for j := index - c.radius; j <= index+c.radius; j++ {
		k := j
		if k < 0 {
			k = 0
		}
		if k > last {
			k = last
		}
		if f := c.cache[k]; filterable(f) && f.Width == center.Width && f.Height == center.Height {
			window = append(window, f)
		}
	}
	return c.fn(window, center), nil
}

// deinterlaceFilter removes combing by reconstructing the second field.
// Fast replaces alternate lines with the average of their neighbors; Blend
// averages each line with the next.
type deinterlaceFilter struct {
	blend bool
}

func (f *deinterlaceFilter) Name() string { return "deinterlace" }

func (f *deinterlaceFilter) Apply(clip frame.Clip) frame.Clip {
	return &mapClip{Clip: clip, fn: f.frame}
}

func (f *deinterlaceFilter) frame(in *frame.Frame) *frame.Frame {
	out := cloneFrame(in)
	for pi := range out.Planes {
		p := &out.Planes[pi]
		src := in.Planes[pi].Ints
		if src == nil || p.Height < 3 {
			continue
		}
		w := p.Width
		if f.blend {
			for y := 0; y < p.Height-1; y++ {
				for x := 0; x < w; x++ {
					p.Ints[y*w+x] = uint16((int(src[y*w+x]) + int(src[(y+1)*w+x]) + 1) / 2)
				}
			}
			continue
		}
		for y := 1; y < p.Height-1; y += 2 {
			for x := 0; x < w; x++ {
				p.Ints[y*w+x] = uint16((int(src[(y-1)*w+x]) + int(src[(y+1)*w+x]) + 1) / 2)
			}
		}
	}
	return out
}

// cleanupFilter suppresses blocky compression artifacts by blending each
// sample toward its 3x3 spatial median.
type cleanupFilter struct {
	strength float64
}

func (f *cleanupFilter) Name() string { return "cleanup" }

func (f *cleanupFilter) Apply(clip frame.Clip) frame.Clip {
	return &mapClip{Clip: clip, fn: f.frame}
}

func (f *cleanupFilter) frame(in *frame.Frame) *frame.Frame {
	out := cloneFrame(in)
	var neighborhood [9]int
	for pi := range out.Planes {
		p := &out.Planes[pi]
		src := in.Planes[pi].Ints
		if src == nil {
			continue
		}
		w, h := p.Width, p.Height
		for y := 1; y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						neighborhood[n] = int(src[(y+dy)*w+(x+dx)])
						n++
					}
				}
				sort.Ints(neighborhood[:])
				median := float64(neighborhood[4])
				orig := float64(src[y*w+x])
				p.Ints[y*w+x] = clampSample(orig + f.strength*(median-orig))
			}
		}
	}
	return out
}

// denoiseFilter blends each sample toward its temporal mean over the window.
type denoiseFilter struct {
	strength float64
	radius   int
}

func (f *denoiseFilter) Name() string { return "denoise" }

func (f *denoiseFilter) Apply(clip frame.Clip) frame.Clip {
	return newWindowClip(clip, f.radius, f.frame)
}

func (f *denoiseFilter) frame(window []*frame.Frame, center *frame.Frame) *frame.Frame {
	if len(window) < 2 {
		return center
	}
	out := cloneFrame(center)
	for pi := range out.Planes {
		p := &out.Planes[pi]
		src := center.Planes[pi].Ints
		if src == nil {
			continue
		}
		for i := range p.Ints {
			sum := 0
			for _, wf := range window {
				sum += int(wf.Planes[pi].Ints[i])
			}
			mean := float64(sum) / float64(len(window))
			orig := float64(src[i])
			p.Ints[i] = clampSample(orig + f.strength*(mean-orig))
		}
	}
	return out
}

// deflickerFilter evens out frame-to-frame global brightness pumping by
// pulling each frame's mean level toward the window average.
type deflickerFilter struct {
	strength float64
	radius   int
}

func (f *deflickerFilter) Name() string { return "deflicker" }

func (f *deflickerFilter) Apply(clip frame.Clip) frame.Clip {
	return newWindowClip(clip, f.radius, f.frame)
}

func (f *deflickerFilter) frame(window []*frame.Frame, center *frame.Frame) *frame.Frame {
	if len(window) < 2 {
		return center
	}
	current := meanLevel(center)
	if current <= 0 {
		return center
	}
	var windowSum float64
	for _, wf := range window {
		windowSum += meanLevel(wf)
	}
	target := windowSum / float64(len(window))
	gain := 1 + f.strength*(target/current-1)

	out := cloneFrame(center)
	for pi := range out.Planes {
		p := &out.Planes[pi]
		if p.Ints == nil {
			continue
		}
		for i, s := range p.Ints {
			p.Ints[i] = clampSample(float64(s) * gain)
		}
	}
	return out
}

func meanLevel(f *frame.Frame) float64 {
	var sum, n int
	for _, p := range f.Planes {
		for _, s := range p.Ints {
			sum += int(s)
		}
		n += len(p.Ints)
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

// colorFilter applies gamma correction, gray-world white balance, and
// contrast stretching per frame.
type colorFilter struct {
	gamma        float64
	autoContrast bool
	whiteBalance bool
}

func (f *colorFilter) Name() string { return "color" }

func (f *colorFilter) Apply(clip frame.Clip) frame.Clip {
	return &mapClip{Clip: clip, fn: f.frame}
}

func (f *colorFilter) frame(in *frame.Frame) *frame.Frame {
	out := cloneFrame(in)

	if f.whiteBalance && out.Layout == frame.LayoutRGB && len(out.Planes) == 3 {
		overall := meanLevel(out)
		if overall > 0 {
			for pi := range out.Planes {
				p := &out.Planes[pi]
				var sum int
				for _, s := range p.Ints {
					sum += int(s)
				}
				if len(p.Ints) == 0 {
					continue
				}
				mean := float64(sum) / float64(len(p.Ints))
				if mean <= 0 {
					continue
				}
				gain := overall / mean
				for i, s := range p.Ints {
					p.Ints[i] = clampSample(float64(s) * gain)
				}
			}
		}
	}

	lo, hi := 0.0, 255.0
	if f.autoContrast {
		lo, hi = levelRange(out)
	}
	scale := 1.0
	if hi > lo {
		scale = 255.0 / (hi - lo)
	}

	gamma := f.gamma
	if gamma <= 0 {
		gamma = 1
	}
	var lut [256]uint16
	for v := 0; v < 256; v++ {
		level := (float64(v) - lo) * scale
		if level < 0 {
			level = 0
		}
		if level > 255 {
			level = 255
		}
		lut[v] = clampSample(255 * math.Pow(level/255, 1/gamma))
	}

	for pi := range out.Planes {
		p := &out.Planes[pi]
		for i, s := range p.Ints {
			if s > 255 {
				s = 255
			}
			p.Ints[i] = lut[s]
		}
	}
	return out
}

// levelRange returns the darkest and brightest sample across all planes.
func levelRange(f *frame.Frame) (lo, hi float64) {
	minV, maxV := 255, 0
	for _, p := range f.Planes {
		for _, s := range p.Ints {
			v := int(s)
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}
	if maxV < minV {
		return 0, 255
	}
	return float64(minV), float64(maxV)
}

// sharpenFilter applies an unsharp mask with a 3x3 box blur.
type sharpenFilter struct {
	strength float64
}

func (f *sharpenFilter) Name() string { return "sharpen" }

func (f *sharpenFilter) Apply(clip frame.Clip) frame.Clip {
	return &mapClip{Clip: clip, fn: f.frame}
}

func (f *sharpenFilter) frame(in *frame.Frame) *frame.Frame {
	out := cloneFrame(in)
	for pi := range out.Planes {
		p := &out.Planes[pi]
		src := in.Planes[pi].Ints
		if src == nil {
			continue
		}
		w, h := p.Width, p.Height
		for y := 1; y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				sum := 0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sum += int(src[(y+dy)*w+(x+dx)])
					}
				}
				blur := float64(sum) / 9
				orig := float64(src[y*w+x])
				p.Ints[y*w+x] = clampSample(orig + f.strength*(orig-blur))
			}
		}
	}
	return out
}
