package protracker

import (
	"errors"
	"fmt"
)

const (
	rowsPerPattern = 64
	numChannels    = 4

	defaultTempo = 125 // beats per minute
	defaultSpeed = 6   // ticks per row
	maxSpeed     = 31  // larger Fxx values set the tempo

	eventBufferLen = 256
)

var (
	// ErrNoSong is returned when asked to play a nil song or one without orders.
	ErrNoSong = errors.New("protracker: song has no orders")
	// ErrNoSampleFrequency is returned when asked to play at 0 Hz.
	ErrNoSampleFrequency = errors.New("protracker: sampling frequency must be positive")
)

// Player plays a Song. It must be initialized with a Song, see NewPlayer(),
// or started with Play().
//
// A Player is not safe for concurrent use. Audio hosts that control playback
// from another goroutine should use an Engine.
type Player struct {
	*Song
	samplingFrequency uint

	// song configuration
	Tempo          int     // beats per minute
	Speed          int     // ticks per row
	samplesPerTick float64 // derived from Tempo and Speed

	// These next fields track player position in the song
	samplesToTick float64 // output samples left in the current tick
	tick          int     // tick within the row
	row           int     // row within the pattern
	position      int     // index into Orders
	patternBreak  int     // row to break to on the next row, -1 if none
	positionJump  int     // position to jump to on the next row, -1 if none
	playing       bool

	// Bitmask of muted channels, channel 1 in LSB. To mute a channel set
	// its bit to 1.
	Mute uint

	publishRows bool
	publishStop bool
	events      chan Event
	dropped     int // events dropped because the consumer lagged

	diag     *Diagnostics
	channels [numChannels]channel
}

// ChannelNoteData represents the note data for a channel
type ChannelNoteData struct {
	Note       string // 'A-3', 'C#2', ...
	Period     int
	Instrument int // 0 if no instrument
	Effect     Effect
	Param      byte
}

// String returns a formatted string of the note data, e.g. "C-2 01 A0F"
func (c *ChannelNoteData) String() string {
	if c.Effect >= 0xE0 {
		return fmt.Sprintf("%s %02X E%X%X", c.Note, c.Instrument, byte(c.Effect)&0xF, c.Param)
	}
	return fmt.Sprintf("%s %02X %X%02X", c.Note, c.Instrument, byte(c.Effect), c.Param)
}

// ChannelState holds the current state of a channel
type ChannelState struct {
	Instrument int // 1-based, 0 if no instrument playing
	Period     float64
	Volume     int
}

// PlayerState holds player position and channel state
type PlayerState struct {
	Position int
	Pattern  int
	Row      int
	Tick     int
	Tempo    int
	Speed    int
	Playing  bool

	Notes    []ChannelNoteData
	Channels []ChannelState
}

var (
	// Amiga period values. This table is used to map the note period
	// in the MOD file to a note name for display. It is not used in
	// the mixer.
	periodTable = []int{
		// C-1, C#1, D-1, ..., B-1
		856, 808, 762, 720, 678, 640, 604, 570, 538, 508, 480, 453,
		// C-2, C#2, D-2, ..., B-2
		428, 404, 381, 360, 339, 320, 302, 285, 269, 254, 240, 226,
		// C-3, C#3, D-3, ..., B-3
		214, 202, 190, 180, 170, 160, 151, 143, 135, 127, 120, 113,
	}

	// Literal notes
	notes = []string{
		"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-",
	}

	emptyRow Row
)

// NewPlayer returns a new Player for the given song. The Player is already
// started.
func NewPlayer(song *Song, samplingFrequency uint) (*Player, error) {
	p := newPlayer(nil)
	if err := p.Play(song, samplingFrequency); err != nil {
		return nil, err
	}
	return p, nil
}

func newPlayer(diag *Diagnostics) *Player {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	p := &Player{
		events:       make(chan Event, eventBufferLen),
		diag:         diag,
		patternBreak: -1,
		positionJump: -1,
	}
	for i := range p.channels {
		p.channels[i].reset()
	}
	return p
}

// Play starts song from the beginning at the default tempo and speed. The
// player keeps its own copy of the song.
func (p *Player) Play(song *Song, samplingFrequency uint) error {
	if song == nil || len(song.Orders) == 0 {
		return ErrNoSong
	}
	return p.play(song.Clone(), samplingFrequency)
}

// play starts song without copying it.
func (p *Player) play(song *Song, samplingFrequency uint) error {
	if song == nil || len(song.Orders) == 0 {
		return ErrNoSong
	}
	if samplingFrequency == 0 {
		return ErrNoSampleFrequency
	}

	p.Song = song
	p.samplingFrequency = samplingFrequency
	p.Speed = defaultSpeed
	p.setTempo(defaultTempo)

	// Setup counters so that the first "tick" of the player executes the
	// first row immediately.
	p.position = -1
	p.row = rowsPerPattern - 1
	p.tick = p.Speed - 1
	p.samplesToTick = 0
	p.patternBreak = -1
	p.positionJump = -1

	for i := range p.channels {
		p.channels[i].reset()
	}
	p.Start()

	return nil
}

// Start tells the player to start playing. Calls to GenerateAudio will advance
// the song position and generate audio samples.
func (p *Player) Start() {
	p.playing = p.Song != nil
}

// Stop tells the player to stop playing. Calls to GenerateAudio will not
// advance the song position and produce silence. A stopped player preserves
// state and a subsequent call to Resume carries on where the player left off.
func (p *Player) Stop() {
	p.playing = false
}

// Resume continues playback after Stop.
func (p *Player) Resume() {
	p.Start()
}

// IsPlaying returns if the song is being played
func (p *Player) IsPlaying() bool {
	return p.playing
}

// Events returns the channel that row and stop events are delivered on.
// Events are only sent while the matching subscription is enabled, and are
// dropped if the channel is full.
func (p *Player) Events() <-chan Event {
	return p.events
}

// SubscribeRowEvents enables or disables RowEntered events.
func (p *Player) SubscribeRowEvents(enable bool) {
	p.publishRows = enable
}

// SubscribeStopEvent enables or disables the Stopped event.
func (p *Player) SubscribeStopEvent(enable bool) {
	p.publishStop = enable
}

// SeekTo sets the player's current position. The position and row are
// clamped to the song, and any pending pattern break or position jump is
// discarded. The next sample starts the requested row.
func (p *Player) SeekTo(position, row int) {
	if p.Song == nil {
		return
	}
	position = min(max(position, 0), len(p.Orders)-1)
	row = min(max(row, 0), rowsPerPattern-1)

	p.position = position
	p.row = row - 1
	if p.row < 0 {
		p.row = rowsPerPattern - 1
		p.position = position - 1
	}
	p.tick = p.Speed - 1
	p.samplesToTick = 0
	p.patternBreak = -1
	p.positionJump = -1
}

// Apply executes a transport command. A CommandPlay song is used as is, it
// was copied by PlayCommand.
func (p *Player) Apply(cmd Command) error {
	switch cmd.Kind {
	case CommandPlay:
		return p.play(cmd.Song, cmd.SampleRate)
	case CommandStop:
		p.Stop()
	case CommandResume:
		p.Resume()
	case CommandSeek:
		p.SeekTo(cmd.Position, cmd.Row)
	case CommandSubscribeRows:
		p.SubscribeRowEvents(cmd.Enable)
	case CommandSubscribeStop:
		p.SubscribeStopEvent(cmd.Enable)
	case CommandMute:
		p.Mute = cmd.Mute
	default:
		return fmt.Errorf("protracker: unknown command %d", cmd.Kind)
	}
	return nil
}

// NoteDataFor returns the note data for a specific position and row, or nil
// if the requested position is invalid.
func (p *Player) NoteDataFor(position, row int) []ChannelNoteData {
	if p.Song == nil {
		return nil
	}
	return p.Song.NoteData(position, row)
}

// Diagnostics returns the registry the player reports unsupported effects
// and bad song references to.
func (p *Player) Diagnostics() *Diagnostics {
	return p.diag
}

// State returns the current state of the player (song position, channel state, etc.)
func (p *Player) State() PlayerState {
	state := PlayerState{
		Tick:    p.tick,
		Tempo:   p.Tempo,
		Speed:   p.Speed,
		Playing: p.playing,
	}
	if p.Song == nil {
		return state
	}

	// Before the first row the counters point at the row "before" the song
	state.Position = max(p.position, 0)
	state.Row = p.row
	if p.position < 0 {
		state.Row = 0
	}
	state.Pattern = int(p.Orders[state.Position])
	state.Notes = p.NoteDataFor(state.Position, state.Row)

	state.Channels = make([]ChannelState, numChannels)
	for i := range p.channels {
		c := &p.channels[i]
		cs := &state.Channels[i]
		cs.Instrument = p.instrumentIndex(c.instrument)
		cs.Period = c.currentPeriod
		cs.Volume = c.currentVolume
	}

	return state
}

func (p *Player) instrumentIndex(ins *Instrument) int {
	for i := range p.Instruments {
		if &p.Instruments[i] == ins {
			return i + 1
		}
	}
	return 0
}

func (p *Player) setTempo(tempo int) {
	if tempo == 0 {
		// F00 asks for the song to end
		p.playing = false
		if p.publishStop {
			p.emit(Event{Kind: EventStopped})
		}
		return
	}
	p.Tempo = tempo
	p.samplesPerTick = float64(p.samplingFrequency) * 60 / float64(tempo) / 4 / float64(p.Speed)
}

func (p *Player) setSpeed(speed int) {
	p.Speed = speed
}

func (p *Player) setPatternBreak(row int) {
	if row >= rowsPerPattern {
		p.diag.ReportAnomaly("pattern break row out of range", p.position, p.row)
		row = 0
	}
	p.patternBreak = row
}

func (p *Player) setPositionJump(position int) {
	p.positionJump = position
}

func (p *Player) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.dropped++
	}
}

// NextSample advances the player by one output sample and returns it. A
// stopped player returns silence.
func (p *Player) NextSample() float32 {
	if !p.playing {
		return 0
	}

	if p.samplesToTick <= 0 {
		p.samplesToTick += p.samplesPerTick
		p.sequenceTick()
		if !p.playing {
			return 0
		}
	}
	p.samplesToTick--

	var out [numChannels]float64
	for i := range p.channels {
		s := p.channels[i].nextOutput()
		if p.Mute&(1<<i) == 0 {
			out[i] = s
		}
	}
	return mix(out[0], out[1], out[2], out[3])
}

// GenerateAudio fills out with mono samples in the range [-1, 1] and returns
// the number of samples written, which is always len(out).
//
// This function also advances the player through the song. If the player is
// stopped out is filled with silence.
func (p *Player) GenerateAudio(out []float32) int {
	for i := range out {
		out[i] = p.NextSample()
	}
	return len(out)
}

// sequenceTick advances the player by one tick. The first tick of a row
// plays the row's notes, every tick then runs the channel effects.
func (p *Player) sequenceTick() {
	p.tick++
	if p.tick >= p.Speed {
		p.tick = 0
		p.nextRow()
	}

	for i := range p.channels {
		p.channelTick(&p.channels[i])
	}
}

func (p *Player) nextRow() {
	p.row++
	switch {
	case p.patternBreak >= 0 || p.positionJump >= 0:
		if p.positionJump >= 0 {
			p.position = p.positionJump
		} else {
			p.position++
		}
		p.row = max(p.patternBreak, 0)
		p.patternBreak = -1
		p.positionJump = -1
	case p.row >= rowsPerPattern:
		p.row = 0
		p.position++
	}
	p.position = wrapPosition(p.position, len(p.Orders))

	row := p.currentRow()
	for i := range p.channels {
		p.playNote(&p.channels[i], row[i])
	}

	if p.publishRows {
		p.emit(Event{Kind: EventRowEntered, Position: p.position, Row: p.row})
	}
}

func (p *Player) currentRow() *Row {
	pattern := int(p.Orders[p.position])
	if pattern >= len(p.Patterns) {
		p.diag.ReportAnomaly("pattern out of range", p.position, p.row)
		return &emptyRow
	}
	return &p.Patterns[pattern][p.row]
}

func wrapPosition(position, n int) int {
	if n == 0 {
		return 0
	}
	return (position%n + n) % n
}

// playNote applies a row's note to the channel: instrument, then period,
// then the effect, which can hold back parts of the first two.
func (p *Player) playNote(c *channel, n Note) {
	c.pending = pendingNote{volume: -1, position: -1}
	pn := &c.pending

	if n.Instrument != 0 {
		if ins := p.Song.instrument(n.Instrument); ins != nil {
			pn.instrument = ins
			pn.volume = ins.Volume
			pn.position = 0
		} else {
			p.diag.ReportAnomaly("instrument out of range", p.position, p.row)
		}
	}

	if n.Period != 0 {
		ins := pn.instrument
		if ins == nil {
			ins = c.instrument
		}
		finetune := 0
		if ins != nil {
			finetune = ins.Finetune
		}
		pn.period = float64(n.Period - finetune)
		pn.setCurrent = true
		pn.position = 0
	}

	c.fx = activeEffect{}
	if n.hasEffect() {
		p.dispatchEffect(c, n)
	}
	if c.fx.kind == kindNoteDelay {
		return
	}
	c.apply()

	// Fine effects act once, on the row tick, after the note is applied
	switch n.Effect {
	case effectFineSlideUp:
		c.period = clampPeriod(c.period - float64(n.Param))
		c.currentPeriod -= float64(n.Param)
	case effectFineSlideDown:
		c.period = clampPeriod(c.period + float64(n.Param))
		c.currentPeriod += float64(n.Param)
	case effectFineVolSlideUp:
		c.volume = clampVolume(c.volume + int(n.Param))
		c.currentVolume = clampVolume(c.currentVolume + int(n.Param))
	case effectFineVolSlideDown:
		c.volume = clampVolume(c.volume - int(n.Param))
		c.currentVolume = clampVolume(c.currentVolume - int(n.Param))
	}
}

func (p *Player) dispatchEffect(c *channel, n Note) {
	switch n.Effect {
	case effectArpeggio:
		c.fx.kind = kindArpeggio
		c.fx.arpeggio = [3]int{0, n.hi(), n.lo()}
	case effectSlideUp:
		c.fx.kind = kindSlide
		c.fx.delta = -int(n.Param)
	case effectSlideDown:
		c.fx.kind = kindSlide
		c.fx.delta = int(n.Param)
	case effectTonePortamento:
		if n.Param != 0 {
			c.portaSpeed = int(n.Param)
		}
		c.tonePortamento()
	case effectVibrato:
		if n.hi() != 0 {
			c.vibratoSpeed = n.hi()
		}
		if n.lo() != 0 {
			c.vibratoDepth = n.lo()
		}
		c.fx.kind = kindVibrato
	case effectPortaVolSlide:
		c.tonePortamento()
		c.fx.volumeSlide = volumeSlideDelta(n)
	case effectVibratoVolSlide:
		c.fx.kind = kindVibrato
		c.fx.volumeSlide = volumeSlideDelta(n)
	case effectSampleOffset:
		c.pending.position = float64(int(n.Param) * 256)
	case effectVolumeSlide:
		c.fx.volumeSlide = volumeSlideDelta(n)
	case effectPositionJump:
		p.setPositionJump(int(n.Param))
	case effectSetVolume:
		c.pending.volume = int(n.Param)
	case effectPatternBreak:
		p.setPatternBreak(n.hi()*10 + n.lo())
	case effectSetSpeed:
		if n.Param >= 1 && n.Param <= maxSpeed {
			p.setSpeed(int(n.Param))
		} else {
			p.setTempo(int(n.Param))
		}
	case effectRetrigger:
		if n.Param != 0 {
			c.fx.kind = kindRetrigger
			c.fx.interval = int(n.Param)
		}
	case effectNoteDelay:
		// ED0 plays the note straight away
		if n.Param != 0 {
			c.fx.kind = kindNoteDelay
			c.fx.tick = int(n.Param)
		}
	case effectNoteCut:
		c.fx.kind = kindNoteCut
		c.fx.tick = int(n.Param)
	case effectFineSlideUp, effectFineSlideDown, effectFineVolSlideUp, effectFineVolSlideDown:
		// applied by playNote once the note is set
	default:
		p.diag.ReportUnsupported(n.Effect)
	}
}

// volumeSlideDelta decodes Axy: x slides up, otherwise y slides down.
func volumeSlideDelta(n Note) int {
	if n.hi() != 0 {
		return n.hi()
	}
	return -n.lo()
}

// channelTick runs the channel's active effect for the current tick and
// updates the sample speed.
func (p *Player) channelTick(c *channel) {
	if c.fx.volumeSlide != 0 && p.tick > 0 {
		c.volumeSlide()
	}

	switch c.fx.kind {
	case kindVibrato:
		c.vibrato()
	case kindSlide:
		c.currentPeriod += float64(c.fx.delta)
	case kindPortamento:
		c.portaToNote()
	case kindArpeggio:
		c.currentPeriod = arpeggioPeriod(c.period, c.fx.arpeggio[p.tick%len(c.fx.arpeggio)])
	case kindRetrigger:
		if p.tick%c.fx.interval == 0 {
			c.position = 0
		}
	case kindNoteDelay:
		if p.tick == c.fx.tick {
			c.apply()
		}
	case kindNoteCut:
		if p.tick == c.fx.tick {
			c.volume = 0
			c.currentVolume = 0
		}
	}

	c.updateSpeed(float64(p.samplingFrequency))
}

func noteStrFromPeriod(period int) string {
	if period == 0 {
		return "..."
	}
	for i, prd := range periodTable {
		if prd == period {
			return fmt.Sprintf("%s%d", notes[i%12], i/12+1)
		}
	}
	return "???"
}
