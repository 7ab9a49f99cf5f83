// Package config holds the modplay command line settings.
package config

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/spf13/pflag"

	"github.com/chriskillpack/protracker/internal/comb"
)

const (
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
)

var (
	backends = []string{BackendOto, BackendPortAudio}
	reverbs  = []string{"light", "medium", "hall", "none"}
)

// Config holds the settings shared by the modplay subcommands.
type Config struct {
	Hz      int
	Backend string
	Reverb  string
	Start   int  // starting position in the song
	Mute    uint // bitmask of muted channels, channel 1 in LSB
	NoUI    bool
	Verbose bool

	// wav only
	Output  string
	Seconds int // maximum length, 0 for no limit
	Loops   int // number of times to play the song
}

// Default returns the settings used when no flags are given.
func Default() Config {
	return Config{
		Hz:      44100,
		Backend: BackendOto,
		Reverb:  "none",
		Loops:   1,
	}
}

// AddFlags binds the settings used by every subcommand to fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Hz, "hz", c.Hz, "output hz")
	fs.StringVar(&c.Reverb, "reverb", c.Reverb, "choose from light, medium, hall or none")
	fs.IntVar(&c.Start, "start", c.Start, "starting position in the MOD, clamped to song length")
	fs.UintVar(&c.Mute, "mute", c.Mute, "bitmask of muted channels, channel 1 in LSB, set bit to mute channel")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "log debug messages")
}

// AddPlayFlags binds the settings of the play subcommand to fs.
func (c *Config) AddPlayFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "audio output, oto or portaudio")
	fs.BoolVar(&c.NoUI, "noui", c.NoUI, "turn off all UI, mostly useful in development")
}

// AddWAVFlags binds the settings of the wav subcommand to fs.
func (c *Config) AddWAVFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Output, "output", "o", c.Output, "output WAVE file (required)")
	fs.IntVar(&c.Seconds, "seconds", c.Seconds, "stop after this many seconds, 0 for no limit")
	fs.IntVar(&c.Loops, "loops", c.Loops, "number of times to play the song, useful for songs that loop forever")
}

// Validate checks the settings are in range.
func (c *Config) Validate() error {
	switch {
	case c.Hz < 8000 || c.Hz > 192000:
		return invalid(fmt.Sprintf("hz %d out of range 8000-192000", c.Hz))
	case !slices.Contains(backends, c.Backend):
		return invalid(fmt.Sprintf("unrecognized backend %q", c.Backend))
	case !slices.Contains(reverbs, c.Reverb):
		return invalid(fmt.Sprintf("unrecognized reverb setting %q", c.Reverb))
	case c.Start < 0:
		return invalid("start must not be negative")
	case c.Mute > 0xF:
		return invalid(fmt.Sprintf("mute %#x has bits beyond channel 4", c.Mute))
	case c.Seconds < 0:
		return invalid("seconds must not be negative")
	case c.Loops < 1 && c.Seconds == 0:
		return invalid("loops must be at least 1 without a seconds limit")
	}
	return nil
}

// LogLevel returns the slog level selected by Verbose.
func (c *Config) LogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func invalid(msg string) error {
	return fault.New(msg, ftag.With(ftag.InvalidArgument), fmsg.With("invalid flags"))
}

// ReverbFromFlag initializes an instance of comb.Reverber according to the
// command line flag value.
func ReverbFromFlag(reverb string, sampleRate int) (r comb.Reverber, err error) {
	switch reverb {
	case "light":
		// Small room (bedroom/studio booth)
		r = comb.NewReverb(0.5, 0.5, 0.3, sampleRate)
	case "medium":
		// Living room/small hall
		r = comb.NewReverb(0.7, 0.6, 0.5, sampleRate)
	case "hall":
		// Concert hall
		r = comb.NewReverb(0.9, 0.7, 0.7, sampleRate)
	case "none":
		// No reverb (passthrough)
		r = comb.PassThrough{}
	default:
		err = fmt.Errorf("unrecognized reverb setting %q", reverb)
	}

	return r, err
}
