package protracker

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned by Send when the audio goroutine has not
	// drained earlier commands.
	ErrQueueFull = errors.New("protracker: command queue full")
	// ErrEngineClosed is returned by Send and Close after Close.
	ErrEngineClosed = errors.New("protracker: engine closed")
)

const commandQueueLen = 64

// CommandKind identifies a transport command.
type CommandKind int

const (
	CommandPlay CommandKind = iota + 1
	CommandStop
	CommandResume
	CommandSeek
	CommandSubscribeRows
	CommandSubscribeStop
	CommandMute
)

// Command is a transport request from the host to the player.
type Command struct {
	Kind       CommandKind
	Song       *Song // CommandPlay
	SampleRate uint  // CommandPlay
	Position   int   // CommandSeek
	Row        int   // CommandSeek
	Enable     bool  // CommandSubscribeRows, CommandSubscribeStop
	Mute       uint  // CommandMute
}

// PlayCommand starts song from the beginning. The song is copied here, on the
// caller's goroutine, and the player keeps that copy.
func PlayCommand(song *Song, sampleRate uint) Command {
	if song != nil {
		song = song.Clone()
	}
	return Command{Kind: CommandPlay, Song: song, SampleRate: sampleRate}
}

// StopCommand pauses playback.
func StopCommand() Command { return Command{Kind: CommandStop} }

// ResumeCommand continues playback after StopCommand.
func ResumeCommand() Command { return Command{Kind: CommandResume} }

// SeekCommand moves playback to row of position.
func SeekCommand(position, row int) Command {
	return Command{Kind: CommandSeek, Position: position, Row: row}
}

// SubscribeRowsCommand turns RowEntered events on or off.
func SubscribeRowsCommand(enable bool) Command {
	return Command{Kind: CommandSubscribeRows, Enable: enable}
}

// SubscribeStopCommand turns the Stopped event on or off.
func SubscribeStopCommand(enable bool) Command {
	return Command{Kind: CommandSubscribeStop, Enable: enable}
}

// MuteCommand sets the player's channel mute mask, channel 1 in LSB.
func MuteCommand(mask uint) Command {
	return Command{Kind: CommandMute, Mute: mask}
}

// EventKind identifies an event sent from the player to the host.
type EventKind int

const (
	EventRowEntered EventKind = iota + 1
	EventStopped
)

// Event is a notification from the player. Position and Row are only set for
// EventRowEntered.
type Event struct {
	Kind     EventKind
	Position int
	Row      int
}

func (k EventKind) String() string {
	switch k {
	case EventRowEntered:
		return "row"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// Engine runs a Player on the audio goroutine and takes commands from one
// control goroutine.
//
// Send queues a command without blocking. Render applies every queued command,
// in order, before it produces the next batch of samples. Events are read
// from Events and are dropped if the host does not keep up.
type Engine struct {
	player   *Player
	diag     *Diagnostics
	logger   *slog.Logger
	commands chan Command
	closed   atomic.Bool
}

// NewEngine returns an idle engine. Unsupported effects and bad song data are
// reported to diag, which may be nil to log through slog.Default().
func NewEngine(diag *Diagnostics) *Engine {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	return &Engine{
		player:   newPlayer(diag),
		diag:     diag,
		logger:   diag.logger,
		commands: make(chan Command, commandQueueLen),
	}
}

// Send queues cmd for the audio goroutine.
func (e *Engine) Send(cmd Command) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events returns the channel that row and stop events are delivered on.
func (e *Engine) Events() <-chan Event {
	return e.player.Events()
}

// Diagnostics returns the engine's diagnostics registry.
func (e *Engine) Diagnostics() *Diagnostics {
	return e.diag
}

// Render applies pending commands and fills out with the next samples. It
// must only be called from one goroutine. A closed or stopped engine renders
// silence.
func (e *Engine) Render(out []float32) int {
	if e.closed.Load() {
		clear(out)
		return len(out)
	}
	e.drain()
	return e.player.GenerateAudio(out)
}

func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.commands:
			if err := e.player.Apply(cmd); err != nil {
				e.logger.Warn("command rejected", "command", cmd.Kind, "err", err)
			}
		default:
			return
		}
	}
}

// Close stops the engine and clears its diagnostics. Render returns silence
// and Send fails after Close.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return ErrEngineClosed
	}
	e.diag.Reset()
	return nil
}
