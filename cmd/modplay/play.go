package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/protracker"
	"github.com/chriskillpack/protracker/cmd/internal/config"
)

var (
	white   = color.New(color.FgWhite).SprintfFunc()
	cyan    = color.New(color.FgCyan).SprintfFunc()
	magenta = color.New(color.FgMagenta).SprintfFunc()
	yellow  = color.New(color.FgYellow).SprintfFunc()
	blue    = color.New(color.FgHiBlue).SprintFunc()
	green   = color.New(color.FgGreen).SprintfFunc()
	red     = color.New(color.FgRed).SprintfFunc()

	headerColor = color.New(color.FgHiBlue, color.Bold)
)

const (
	escape     = "\x1b["
	hideCursor = escape + "?25l"
	showCursor = escape + "?25h"

	numChannels = 4
)

// transport is a request from the keyboard to the play loop.
type transport int

const (
	transportQuit transport = iota
	transportPause
	transportPrev
	transportNext
	transportMute1 // transportMute1+n toggles channel n+1
)

func runPlay(cmd *cobra.Command, args []string) error {
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

	out, err := newOutput(cfg.Backend, cfg.Hz, func(buf []float32) {
		engine.Render(buf)
		rvb.Process(buf)
	})
	if err != nil {
		return err
	}
	defer out.Close()

	if err := out.Start(); err != nil {
		return err
	}
	slog.Debug("playing", "backend", cfg.Backend, "hz", cfg.Hz, "reverb", cfg.Reverb)

	var uiw io.Writer = cmd.OutOrStdout()
	if cfg.NoUI {
		uiw = io.Discard
	}

	keysCh := make(chan transport, 8)
	keysDone := make(chan struct{})
	go func() {
		defer close(keysDone)
		listenKeys(keysCh)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigch)

	// Hide the cursor
	fmt.Fprint(uiw, hideCursor)
	defer fmt.Fprint(uiw, showCursor)

	d := &display{w: uiw, song: song, mute: cfg.Mute}
	paused := false
	position := cfg.Start

loop:
	for {
		select {
		case ev := <-engine.Events():
			switch ev.Kind {
			case protracker.EventRowEntered:
				position = ev.Position
				d.draw(ev.Position, ev.Row)
			case protracker.EventStopped:
				break loop
			}
		case t := <-keysCh:
			var cmd protracker.Command
			switch t {
			case transportQuit:
				break loop
			case transportPause:
				paused = !paused
				cmd = protracker.ResumeCommand()
				if paused {
					cmd = protracker.StopCommand()
				}
			case transportPrev:
				cmd = protracker.SeekCommand(max(position-1, 0), 0)
			case transportNext:
				cmd = protracker.SeekCommand(position+1, 0)
			default:
				d.mute ^= 1 << uint(t-transportMute1)
				cmd = protracker.MuteCommand(d.mute)
			}
			if err := engine.Send(cmd); err != nil {
				slog.Warn("dropped key", "err", err)
			}
		case <-sigch:
			break loop
		}
	}

	// Release the terminal if the song ended on its own
	select {
	case <-keysDone:
	default:
		go keyboard.SimulateKeyPress(keys.Escape)
		select {
		case <-keysDone:
		case <-time.After(time.Second):
		}
	}

	return nil
}

// listenKeys maps key presses to transport requests until a quit key is
// pressed.
func listenKeys(ch chan<- transport) {
	err := keyboard.Listen(func(key keys.Key) (stop bool, err error) {
		switch key.Code {
		case keys.CtrlC, keys.Escape:
			ch <- transportQuit
			return true, nil
		case keys.Space:
			ch <- transportPause
		case keys.Left:
			ch <- transportPrev
		case keys.Right:
			ch <- transportNext
		case keys.RuneKey:
			switch r := key.Runes[0]; {
			case r == 'q':
				ch <- transportQuit
				return true, nil
			case r == ' ':
				ch <- transportPause
			case r >= '1' && r <= '4':
				ch <- transportMute1 + transport(r-'1')
			}
		}
		return false, nil
	})
	if err != nil {
		slog.Warn("keyboard unavailable", "err", err)
	}
}

// display prints the previous 4 rows, the current row and the next 4 rows
//
//	<title> pos 03/2A pat 05 row 1A/3F
//
//	         1          2          3          4
//	    C-2 01 A0F|... 00 000|D#3 02 E93|... 00 000
//	    ... 00 000|... 00 000|... 00 000|... 00 000
//	>>> ... 00 000|... 00 000|... 00 000|... 00 000 <<<
type display struct {
	w    io.Writer
	song *protracker.Song
	mute uint
}

func (d *display) draw(position, row int) {
	song := d.song
	if len(song.Title) > 0 {
		fmt.Fprint(d.w, song.Title+" ")
	}
	fmt.Fprintf(d.w, "%s %02X/%02X %s %02X %s %02X/3F\n\n",
		blue("pos"), position, len(song.Orders),
		blue("pat"), song.Orders[position],
		blue("row"), row)

	// Print the channel header, muted channels in red
	fmt.Fprint(d.w, "    ")
	for i := 0; i < numChannels; i++ {
		const chanstr = "%2d        "
		if d.mute&(1<<i) != 0 {
			fmt.Fprint(d.w, red(chanstr, i+1))
			continue
		}
		fmt.Fprint(d.w, green(chanstr, i+1))
	}
	fmt.Fprintln(d.w)

	for i := -4; i <= 4; i++ {
		nd := song.NoteData(position, row+i)
		if nd == nil {
			fmt.Fprintln(d.w)
			continue
		}

		// If this is the currently playing row then highlight it
		if i == 0 {
			fmt.Fprint(d.w, ">>> ")
		} else {
			fmt.Fprint(d.w, "    ")
		}
		for ni, n := range nd {
			noteDisplay(d.w, n)
			if ni < len(nd)-1 {
				fmt.Fprint(d.w, "|")
			}
		}
		if i == 0 {
			fmt.Fprint(d.w, " <<<")
		}
		fmt.Fprintln(d.w)
	}
	fmt.Fprintf(d.w, escape+"%dF", 12) // move cursor back to the title line
}

func noteDisplay(w io.Writer, n protracker.ChannelNoteData) {
	fmt.Fprint(w, white("%s", n.Note), " ", cyan("%02X", n.Instrument), " ")
	if n.Effect >= 0xE0 {
		fmt.Fprint(w, magenta("%s", n.Effect), yellow("%X", n.Param))
		return
	}
	fmt.Fprint(w, magenta("%s", n.Effect), yellow("%02X", n.Param))
}
