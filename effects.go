package protracker

import "fmt"

// Effect is a decoded effect command. Commands 0x0-0xF are the plain MOD
// commands, extended commands (Exy) are stored as 0xE0|x.
type Effect byte

// MOD note effects
const (
	effectArpeggio         Effect = 0x0
	effectSlideUp          Effect = 0x1
	effectSlideDown        Effect = 0x2
	effectTonePortamento   Effect = 0x3
	effectVibrato          Effect = 0x4
	effectPortaVolSlide    Effect = 0x5
	effectVibratoVolSlide  Effect = 0x6
	effectSampleOffset     Effect = 0x9
	effectVolumeSlide      Effect = 0xA
	effectPositionJump     Effect = 0xB
	effectSetVolume        Effect = 0xC
	effectPatternBreak     Effect = 0xD
	effectExtended         Effect = 0xE
	effectSetSpeed         Effect = 0xF
	effectFineSlideUp      Effect = 0xE1
	effectFineSlideDown    Effect = 0xE2
	effectRetrigger        Effect = 0xE9
	effectFineVolSlideUp   Effect = 0xEA
	effectFineVolSlideDown Effect = 0xEB
	effectNoteCut          Effect = 0xEC
	effectNoteDelay        Effect = 0xED
)

// String returns the effect as it is written in a tracker, e.g. "A" or "E9".
func (e Effect) String() string {
	if e >= 0xE0 {
		return fmt.Sprintf("E%X", byte(e)&0xF)
	}
	return fmt.Sprintf("%X", byte(e))
}

// effectKind selects the per tick behaviour of a channel for the current
// row. Exactly one kind is active at a time.
type effectKind int

const (
	kindNone effectKind = iota
	kindArpeggio
	kindSlide
	kindPortamento
	kindVibrato
	kindRetrigger
	kindNoteDelay
	kindNoteCut
)

// activeEffect is the effect state for a single row. It is rebuilt by
// playNote on every row and only read by channelTick.
type activeEffect struct {
	kind        effectKind
	arpeggio    [3]int // half note offsets
	delta       int    // period change per tick for slides
	interval    int    // retrigger interval
	tick        int    // note delay / note cut tick
	volumeSlide int    // volume change per tick, after the first tick
}
