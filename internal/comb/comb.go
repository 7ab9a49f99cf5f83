// Package comb implements a small Schroeder reverb for mono float audio: four
// damped comb filters in parallel followed by two allpass filters in series.
package comb

// Reverber processes a block of audio in place.
type Reverber interface {
	Process(buf []float32)
}

// Delay lengths in samples at 44.1kHz. Mutually prime so the echoes do not
// line up.
var (
	combDelays    = [...]int{1116, 1188, 1277, 1356}
	allpassDelays = [...]int{556, 441}
)

const (
	referenceRate   = 44100
	allpassFeedback = 0.5
)

// combFilter is a feedback comb filter with a one pole lowpass in the
// feedback path.
type combFilter struct {
	buf      []float32
	pos      int
	feedback float32
	damp     float32
	store    float32
}

func newCombFilter(delay int, feedback, damping float32) *combFilter {
	return &combFilter{
		buf:      make([]float32, max(delay, 1)),
		feedback: feedback,
		damp:     damping,
	}
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = in + c.store*c.feedback

	c.pos++
	if c.pos == len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpass struct {
	buf []float32
	pos int
}

func newAllpass(delay int) *allpass {
	return &allpass{buf: make([]float32, max(delay, 1))}
}

func (a *allpass) process(in float32) float32 {
	bufout := a.buf[a.pos]
	a.buf[a.pos] = in + bufout*allpassFeedback

	a.pos++
	if a.pos == len(a.buf) {
		a.pos = 0
	}
	return bufout - in
}

// Reverb is a mono Schroeder reverb.
type Reverb struct {
	combs     [len(combDelays)]*combFilter
	allpasses [len(allpassDelays)]*allpass
	mix       float32
}

var _ Reverber = &Reverb{}

// NewReverb returns a reverb. roomSize and damping are in [0, 1], larger
// rooms ring longer and more damping darkens the tail. mix is the wet
// proportion of the output, 0 leaves the audio untouched.
func NewReverb(roomSize, damping, mix float32, sampleRate int) *Reverb {
	r := &Reverb{mix: mix}
	feedback := 0.7 + 0.28*roomSize
	for i, d := range combDelays {
		r.combs[i] = newCombFilter(scaleDelay(d, sampleRate), feedback, damping)
	}
	for i, d := range allpassDelays {
		r.allpasses[i] = newAllpass(scaleDelay(d, sampleRate))
	}
	return r
}

func scaleDelay(delay, sampleRate int) int {
	return delay * sampleRate / referenceRate
}

// Process applies reverb to buf. Output is limited to [-1, 1].
func (r *Reverb) Process(buf []float32) {
	for i, in := range buf {
		var wet float32
		for _, c := range r.combs {
			wet += c.process(in)
		}
		wet /= float32(len(r.combs))
		for _, a := range r.allpasses {
			wet = a.process(wet)
		}

		buf[i] = min(max(in*(1-r.mix)+wet*r.mix, -1), 1)
	}
}

// PassThrough implements Reverber but does nothing to the audio data.
type PassThrough struct{}

var _ Reverber = PassThrough{}

func (PassThrough) Process([]float32) {}
