package protracker

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"testing"
)

const (
	testSampleRate = 44100
	testSampleLen  = 1000
)

// newTestSong returns a one pattern song with four instruments:
//
//	01 volume 60
//	02 volume 55
//	03 volume 64, finetune 3
//	04 volume 40, looped from 100 for 200 bytes
func newTestSong(pattern [][]string) *Song {
	return newTestSongWithOrders([]byte{0}, pattern)
}

func newTestSongWithOrders(orders []byte, patterns ...[][]string) *Song {
	song := &Song{
		Title:       "testsong",
		Orders:      orders,
		Instruments: make([]Instrument, numInstruments),
		Patterns:    make([]Pattern, len(patterns)),
	}
	song.Instruments[0] = testInstrument("testins1", 60, 0)
	song.Instruments[1] = testInstrument("testins2", 55, 0)
	song.Instruments[2] = testInstrument("finetuned", 64, 3)
	song.Instruments[3] = testInstrument("looped", 40, 0)
	song.Instruments[3].LoopStart = 100
	song.Instruments[3].LoopLen = 200

	for i, p := range patterns {
		song.Patterns[i] = convertTestPatternData(p)
	}
	return song
}

func testInstrument(name string, volume, finetune int) Instrument {
	data := make([]int8, testSampleLen)
	for i := range data {
		data[i] = int8(i%64 + 1)
	}
	return Instrument{
		Name:     name,
		Length:   testSampleLen,
		Volume:   volume,
		Finetune: finetune,
		Data:     data,
	}
}

func newPlayerWithTestPattern(pattern [][]string, t *testing.T) *Player {
	t.Helper()
	return newTestPlayer(newTestSong(pattern), t)
}

func newTestPlayer(song *Song, t *testing.T) *Player {
	t.Helper()
	player, err := NewPlayer(song, testSampleRate)
	if err != nil {
		t.Fatalf("Could not create test player: %v", err)
	}
	player.diag = NewDiagnostics(discardLogger())
	return player
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// Takes input of the form
// C-2 01 A0F     - play C-2 with instrument 1 and effect A with parameter 0F
// ... .. C20     - set volume to 0x20
// ... 02 ...     - instrument 2 without a note
// ... .. E93     - extended effect 9 with parameter 3
// <empty string> - skip
func convertTestPatternData(pattern [][]string) Pattern {
	var p Pattern
	for r, row := range pattern {
		for c, col := range row {
			if col == "" {
				continue
			}
			parts := strings.Fields(col)
			p[r][c] = Note{
				Period:     decodeNote(parts[0]),
				Instrument: decodeHex(parts[1]),
			}
			p[r][c].Effect, p[r][c].Param = decodeEffect(parts[2])
		}
	}
	return p
}

func decodeNote(note string) int {
	// note is of the form A-2, A#2 or ...
	if note == "..." {
		return 0
	}

	ni := 0
	for ni = range notes {
		if notes[ni] == note[0:2] {
			break
		}
	}

	oct := int(note[2] - '1')
	return periodTable[12*oct+ni]
}

func decodeHex(s string) int {
	if s == "" || strings.Trim(s, ".") == "" {
		return 0
	}

	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		panic(err)
	}
	return int(v)
}

func decodeEffect(effect string) (Effect, byte) {
	if effect == "" || effect == "..." {
		return 0, 0
	}

	if effect[0] == 'E' {
		return 0xE0 | Effect(decodeHex(effect[1:2])), byte(decodeHex(effect[2:3]))
	}
	return Effect(decodeHex(effect[0:1])), byte(decodeHex(effect[1:3]))
}

// Advances to next row in the pattern, will have processed the first tick
// of the next row on return.
func advanceToNextRow(plr *Player) {
	old := plr.row
	for old == plr.row {
		plr.sequenceTick()
	}
}

// runTicks runs n sequencer ticks without rendering audio.
func runTicks(plr *Player, n int) {
	for _i := 0; _i < n; _i++ {
		plr.sequenceTick()
	}
}

// buildMOD encodes song as an M.K. file. The order table is song.Orders padded
// with zeros and every pattern in song.Patterns is written.
func buildMOD(song *Song) []byte {
	var buf bytes.Buffer

	title := make([]byte, songNameLen)
	copy(title, song.Title)
	buf.Write(title)

	for i := 0; i < numInstruments; i++ {
		var ins Instrument
		if i < len(song.Instruments) {
			ins = song.Instruments[i]
		}
		hdr := struct {
			Name      [22]byte
			Length    uint16
			Finetune  uint8
			Volume    uint8
			LoopStart uint16
			LoopLen   uint16
		}{
			Length:    uint16(ins.Length / 2),
			Finetune:  uint8(ins.Finetune) & 0xF,
			Volume:    uint8(ins.Volume),
			LoopStart: uint16(ins.LoopStart / 2),
			LoopLen:   uint16(ins.LoopLen / 2),
		}
		copy(hdr.Name[:], ins.Name)
		binary.Write(&buf, binary.BigEndian, &hdr)
	}

	buf.WriteByte(byte(len(song.Orders)))
	buf.WriteByte(song.RestartPosition)
	orders := make([]byte, orderTableLen)
	copy(orders, song.Orders)
	buf.Write(orders)
	buf.Write(modMagic)

	for i := range song.Patterns {
		for _, row := range song.Patterns[i] {
			for _, n := range row {
				buf.Write(encodeNote(n))
			}
		}
	}

	for _, ins := range song.Instruments {
		for _, s := range ins.Data {
			buf.WriteByte(byte(s))
		}
	}

	return buf.Bytes()
}

func encodeNote(n Note) []byte {
	effect, param := byte(n.Effect), n.Param
	if n.Effect >= 0xE0 {
		effect, param = byte(effectExtended), byte(n.Effect&0xF)<<4|n.Param&0xF
	}
	return []byte{
		byte(n.Instrument&0xF0) | byte(n.Period>>8)&0xF,
		byte(n.Period),
		byte(n.Instrument&0xF)<<4 | effect&0xF,
		param,
	}
}
