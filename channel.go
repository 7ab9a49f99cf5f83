package protracker

import "math"

const (
	paulaPALHz = 3546894.6 // Amiga PAL Paula clock

	minPeriod = 113 // B-3
	maxPeriod = 856 // C-1
	maxVolume = 64  // channel maximum volume
)

// pendingNote holds the parts of a note that are applied later, either at
// the end of playNote or on the tick of a note delay.
type pendingNote struct {
	instrument *Instrument
	volume     int     // -1 = unchanged
	period     float64 // 0 = unchanged
	setCurrent bool    // also move the current period to period
	position   float64 // new sample position, -1 = unchanged
}

type channel struct {
	instrument *Instrument // nil if no instrument has been played
	position   float64     // fractional read position in the sample
	speed      float64     // position increment per output sample

	period        float64 // note period, the portamento target
	currentPeriod float64 // period after vibrato, slides and arpeggio
	volume        int
	currentVolume int

	fx      activeEffect
	pending pendingNote

	// Effect memory, kept across rows
	portaSpeed   int
	vibratoSpeed int
	vibratoDepth int
	vibratoPhase int
}

func (c *channel) reset() {
	*c = channel{volume: maxVolume, currentVolume: maxVolume}
}

// apply commits the pending note to the channel.
func (c *channel) apply() {
	pn := &c.pending
	if pn.instrument != nil {
		c.instrument = pn.instrument
	}
	if pn.volume >= 0 {
		c.volume = clampVolume(pn.volume)
		c.currentVolume = c.volume
	}
	if pn.period > 0 {
		c.period = pn.period
	}
	if pn.setCurrent {
		c.currentPeriod = c.period
	}
	if pn.position >= 0 {
		c.position = pn.position
	}
}

// tonePortamento makes the row's note the glide target. The current period
// and sample position are left alone so the playing note slides into it.
func (c *channel) tonePortamento() {
	c.fx.kind = kindPortamento
	c.fx.delta = c.portaSpeed
	c.pending.setCurrent = false
	c.pending.position = -1
}

func (c *channel) portaToNote() {
	if c.currentPeriod == c.period {
		return
	}
	distance := math.Abs(c.period - c.currentPeriod)
	step := min(distance, float64(c.fx.delta))
	if c.currentPeriod < c.period {
		c.currentPeriod += step
	} else {
		c.currentPeriod -= step
	}
}

func (c *channel) volumeSlide() {
	c.currentVolume = clampVolume(c.currentVolume + c.fx.volumeSlide)
}

func (c *channel) vibrato() {
	c.vibratoPhase = (c.vibratoPhase + c.vibratoSpeed) % 64
	c.currentPeriod = c.period + math.Sin(float64(c.vibratoPhase)/64*2*math.Pi)*float64(c.vibratoDepth)
}

// updateSpeed clamps the current period and derives the sample read speed
// from it.
func (c *channel) updateSpeed(samplingFrequency float64) {
	c.currentPeriod = clampPeriod(c.currentPeriod)
	c.speed = sampleSpeed(c.currentPeriod, samplingFrequency)
}

// nextOutput returns the channel's next sample in the range [-0.5, 0.5].
func (c *channel) nextOutput() float64 {
	ins := c.instrument
	if ins == nil || c.period == 0 {
		return 0
	}

	pos := int(c.position)
	if pos >= len(ins.Data) {
		// A sample offset or a loop that points past the data
		if !ins.Looped() || ins.LoopStart >= len(ins.Data) {
			return 0
		}
		c.position = float64(ins.LoopStart)
		pos = ins.LoopStart
	}
	sample := ins.Data[pos]

	c.position += c.speed
	if ins.Looped() {
		if end := ins.loopEnd(); c.position >= float64(end) && end > ins.LoopStart {
			c.position = float64(ins.LoopStart) + math.Mod(c.position-float64(ins.LoopStart), float64(end-ins.LoopStart))
		}
	}

	return float64(sample) / 256 * float64(c.currentVolume) / maxVolume
}

// sampleSpeed returns how far the sample position advances per output sample
// when playing at period.
func sampleSpeed(period, samplingFrequency float64) float64 {
	return paulaPALHz / period / samplingFrequency
}

func clampPeriod(p float64) float64 {
	return min(max(p, minPeriod), maxPeriod)
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

// arpeggioPeriod returns period raised by halfNotes semitones.
func arpeggioPeriod(period float64, halfNotes int) float64 {
	return period / math.Pow(2, float64(halfNotes)/12)
}
