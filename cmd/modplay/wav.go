package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/protracker"
	"github.com/chriskillpack/protracker/cmd/internal/config"
)

const wavChunkLen = 1024

func runWAV(cmd *cobra.Command, args []string) error {
	song, err := loadSong(args[0])
	if err != nil {
		return err
	}

	rvb, err := config.ReverbFromFlag(cfg.Reverb, cfg.Hz)
	if err != nil {
		return fault.Wrap(err, fmsg.With("invalid reverb"))
	}

	engine, err := startEngine(song)
	if err != nil {
		return err
	}
	defer engine.Close()

	wavF, err := os.Create(cfg.Output)
	if err != nil {
		return fault.Wrap(err, fmsg.With("could not create output file"))
	}
	defer wavF.Close()

	enc := wav.NewEncoder(wavF, cfg.Hz, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: cfg.Hz},
		Data:           make([]int, wavChunkLen),
		SourceBitDepth: 16,
	}
	samples := make([]float32, wavChunkLen)

	maxSamples := cfg.Seconds * cfg.Hz
	written := 0
	var passes passCounter
	done := false

	progress := cmd.ErrOrStderr()
	for !done {
		engine.Render(samples)
		rvb.Process(samples)
		for i, s := range samples {
			buf.Data[i] = int(s * 32767)
		}
		if err := enc.Write(buf); err != nil {
			return fault.Wrap(err, fmsg.With("could not write output file"))
		}
		written += len(samples)

	events:
		for {
			select {
			case ev := <-engine.Events():
				switch ev.Kind {
				case protracker.EventRowEntered:
					newPosition := !passes.started || ev.Position != passes.position
					if passes.enter(ev.Position, ev.Row) {
						fmt.Fprintf(progress, "\rpass %d/%d\n", passes.n, cfg.Loops)
					}
					if newPosition {
						fmt.Fprintf(progress, "\r%d/%d", ev.Position+1, len(song.Orders))
					}
				case protracker.EventStopped:
					done = true
				}
			default:
				break events
			}
		}

		if cfg.Loops > 0 && passes.n >= cfg.Loops {
			done = true
		}
		if maxSamples > 0 && written >= maxSamples {
			done = true
		}
	}
	fmt.Fprintln(progress)

	if err := enc.Close(); err != nil {
		return fault.Wrap(err, fmsg.With("could not finish output file"))
	}
	slog.Debug("wrote wav", "file", cfg.Output, "samples", written, "passes", passes.n)
	return nil
}

// passCounter counts passes through a song from the rows it enters. The song
// has looped when it enters a row that is not after the previous one, either
// an earlier position or an earlier or repeated row of the same position.
type passCounter struct {
	n        int
	position int
	row      int
	started  bool
}

// enter records the row just entered and reports whether it starts a new
// pass.
func (pc *passCounter) enter(position, row int) bool {
	looped := pc.started &&
		(position < pc.position || (position == pc.position && row <= pc.row))
	pc.position, pc.row, pc.started = position, row, true
	if looped {
		pc.n++
	}
	return looped
}
