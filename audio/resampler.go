package audio

import (
	"errors"
	"fmt"
	"math"
)

var ErrResamplerConfig = errors.New("invalid resampler configuration")

const (
	sincHalfLen      = 32  // taps on each side of the interpolation point
	sincOversampling = 128 // kernel table entries per input sample
	sincCutoff       = 0.95
)

// Resampler downmixes interleaved audio to mono and converts it to a target
// sample rate with a streaming windowed-sinc interpolator. Filter history is
// carried across calls, so consecutive chunks join without discontinuities.
//
// Input is consumed in fixed blocks of 10 ms at the input rate. Frames that do
// not fill a block are kept and prepended to the next call rather than
// dropped. Output lags input by sincHalfLen input samples.
//
// A Resampler is not safe for concurrent use.
type Resampler struct {
	inRate   uint32
	outRate  uint32
	channels int

	passthrough bool
	downmixOnly bool

	blockSize int
	step      float64   // input samples advanced per output sample
	kernel    []float64 // one side of the windowed sinc, sampled at 1/sincOversampling
	hist      []float64 // filter history + pending block samples
	pos       float64   // next output position within hist
	pending   []float32 // mono frames waiting for a full block
}

// NewResampler returns a Resampler converting channels-interleaved audio at
// inRate to mono at outRate.
func NewResampler(inRate, outRate uint32, channels int) (*Resampler, error) {
	if inRate == 0 || outRate == 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dHz -> %dHz, %d channels", ErrResamplerConfig, inRate, outRate, channels)
	}
	r := &Resampler{inRate: inRate, outRate: outRate, channels: channels}
	if inRate == outRate {
		r.passthrough = channels == 1
		r.downmixOnly = channels > 1
		return r, nil
	}

	r.blockSize = max(int(inRate/100), 1)
	r.step = float64(inRate) / float64(outRate)
	cutoff := sincCutoff * min(1, float64(outRate)/float64(inRate))
	r.kernel = sincKernel(cutoff)
	r.hist = make([]float64, 2*sincHalfLen)
	r.pos = sincHalfLen
	return r, nil
}

// Passthrough reports whether Process returns its input unchanged.
func (r *Resampler) Passthrough() bool { return r.passthrough }

// Process converts one chunk of interleaved samples. The returned slice may
// be empty when the chunk did not complete a block.
func (r *Resampler) Process(input []float32) ([]float32, error) {
	if r.passthrough {
		return input, nil
	}
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("resample: %d samples is not a multiple of %d channels", len(input), r.channels)
	}

	mono := downmix(input, r.channels)
	if r.downmixOnly {
		return mono, nil
	}

	if len(r.pending) > 0 {
		mono = append(r.pending, mono...)
		r.pending = nil
	}

	var out []float32
	n := len(mono) - len(mono)%r.blockSize
	for i := 0; i < n; i += r.blockSize {
		out = r.processBlock(mono[i:i+r.blockSize], out)
	}
	if n < len(mono) {
		r.pending = append([]float32(nil), mono[n:]...)
	}
	return out, nil
}

// Pending returns the number of mono frames held back for the next block.
func (r *Resampler) Pending() int { return len(r.pending) }

func (r *Resampler) processBlock(block []float32, out []float32) []float32 {
	for _, s := range block {
		r.hist = append(r.hist, float64(s))
	}
	for int(r.pos)+sincHalfLen < len(r.hist) {
		out = append(out, float32(r.interpolate(r.pos)))
		r.pos += r.step
	}
	// Keep only the history the next output still needs.
	if drop := int(r.pos) - sincHalfLen + 1; drop > 0 {
		r.hist = append(r.hist[:0], r.hist[drop:]...)
		r.pos -= float64(drop)
	}
	return out
}

func (r *Resampler) interpolate(pos float64) float64 {
	center := int(pos)
	frac := pos - float64(center)
	var acc float64
	for j := center - sincHalfLen + 1; j <= center+sincHalfLen; j++ {
		acc += r.hist[j] * r.tap(float64(j-center)-frac)
	}
	return acc
}

// tap evaluates the kernel at distance d (in input samples) by linear
// interpolation between table entries.
func (r *Resampler) tap(d float64) float64 {
	x := math.Abs(d) * sincOversampling
	i := int(x)
	if i >= len(r.kernel)-1 {
		return 0
	}
	f := x - float64(i)
	return r.kernel[i]*(1-f) + r.kernel[i+1]*f
}

// sincKernel tabulates cutoff*sinc(cutoff*x) under a Blackman-Harris window
// for x in [0, sincHalfLen].
func sincKernel(cutoff float64) []float64 {
	n := sincHalfLen*sincOversampling + 1
	k := make([]float64, n+1) // trailing zero simplifies interpolation at the edge
	for i := range n {
		x := float64(i) / sincOversampling
		k[i] = cutoff * sinc(cutoff*x) * blackmanHarris(x/sincHalfLen)
	}
	return k
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris evaluates the 4-term window at t in [0, 1] from the center.
func blackmanHarris(t float64) float64 {
	if t >= 1 {
		return 0
	}
	// Centered form: phase 0 at the middle of a window of length 2.
	p := math.Pi * (t + 1)
	return 0.35875 - 0.48829*math.Cos(p) + 0.14128*math.Cos(2*p) - 0.01168*math.Cos(3*p)
}

func downmix(input []float32, channels int) []float32 {
	if channels == 1 {
		return append([]float32(nil), input...)
	}
	frames := len(input) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for _, s := range input[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}
