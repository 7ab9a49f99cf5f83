// Command modplay plays 4 channel ProTracker MODs, renders them to WAVE files
// and dumps their contents.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/protracker"
	"github.com/chriskillpack/protracker/cmd/internal/config"
)

var cfg = config.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		msg := err.Error()
		if issue := fmsg.GetIssue(err); issue != "" {
			msg = issue
		}
		fmt.Fprintf(os.Stderr, "modplay: %s\n", msg)
		slog.Debug("command failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "modplay",
	Short: "Play 4 channel ProTracker MODs",
	Long: `modplay plays 4 channel ProTracker (M.K.) MOD files.

Examples:
  modplay play space_debris.mod
  modplay play --reverb hall --start 4 space_debris.mod
  modplay wav space_debris.mod -o space_debris.wav --loops 1
  modplay dump space_debris.mod`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()})))
		return cfg.Validate()
	},
}

var playCmd = &cobra.Command{
	Use:   "play <song.mod>",
	Short: "Play a song through the sound card",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var wavCmd = &cobra.Command{
	Use:   "wav <song.mod>",
	Short: "Render a song to a 16-bit mono WAVE file",
	Args:  cobra.ExactArgs(1),
	RunE:  runWAV,
}

var dumpCmd = &cobra.Command{
	Use:   "dump <song.mod>",
	Short: "Print the song header, instruments and patterns",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	cfg.AddFlags(rootCmd.PersistentFlags())
	cfg.AddPlayFlags(playCmd.Flags())
	cfg.AddWAVFlags(wavCmd.Flags())
	wavCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(playCmd, wavCmd, dumpCmd)
}

func loadSong(path string) (*protracker.Song, error) {
	songF, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("could not read song"))
	}
	song, err := protracker.NewSongFromBytes(songF)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.WithDesc("could not decode song", fmt.Sprintf("%s is not a 4 channel M.K. MOD", path)))
	}
	slog.Debug("loaded song", "title", song.Title, "positions", len(song.Orders), "patterns", len(song.Patterns))
	return song, nil
}

// startEngine queues the commands that start song playing with the current
// settings.
func startEngine(song *protracker.Song) (*protracker.Engine, error) {
	engine := protracker.NewEngine(protracker.NewDiagnostics(slog.Default()))

	cmds := []protracker.Command{
		protracker.SubscribeRowsCommand(true),
		protracker.SubscribeStopCommand(true),
		protracker.PlayCommand(song, uint(cfg.Hz)),
		protracker.MuteCommand(cfg.Mute),
	}
	if cfg.Start > 0 {
		cmds = append(cmds, protracker.SeekCommand(cfg.Start, 0))
	}
	for _, cmd := range cmds {
		if err := engine.Send(cmd); err != nil {
			return nil, fault.Wrap(err, fmsg.With("could not start playback"))
		}
	}
	return engine, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	song, err := loadSong(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	headerColor.Fprintf(w, "%s\n\n", args[0])
	if err := song.Dump(w); err != nil {
		return fault.Wrap(err, fmsg.With("could not write dump"))
	}
	return nil
}
