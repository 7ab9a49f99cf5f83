package protracker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	clone "github.com/huandu/go-clone/generic"
)

// MOD file layout. All multi-byte values are big-endian.
const (
	songNameLen      = 20
	instrumentOffset = 20
	instrumentLen    = 30
	numInstruments   = 31
	songLengthOffset = 950
	restartOffset    = 951
	orderTableOffset = 952
	orderTableLen    = 128
	magicOffset      = 1080
	patternOffset    = 1084

	bytesPerNote = 4
	bytesPerRow  = numChannels * bytesPerNote
	patternBytes = rowsPerPattern * bytesPerRow // 1024
)

var modMagic = []byte("M.K.")

var (
	// ErrTooShort is matched by a FormatError raised for a truncated buffer.
	ErrTooShort = errors.New("too short")
	// ErrBadMagic is matched by a FormatError raised for a missing M.K. tag.
	ErrBadMagic = errors.New("bad magic")
)

// FormatError is returned by NewSongFromBytes when the buffer is not a
// decodable 4 channel MOD.
type FormatError struct {
	Reason string // "too short" or "bad magic"
	Offset int    // offset of the field that could not be read
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("protracker: invalid MOD: %s at offset %d", e.Reason, e.Offset)
}

// Is lets errors.Is match a FormatError against ErrTooShort and ErrBadMagic.
func (e *FormatError) Is(target error) bool {
	switch target {
	case ErrTooShort, ErrBadMagic:
		return target.Error() == e.Reason
	}
	return false
}

func tooShort(offset int) error {
	return &FormatError{Reason: ErrTooShort.Error(), Offset: offset}
}

// Song is a decoded MOD file. A Song is not modified by the Player.
type Song struct {
	Title           string
	Orders          []byte // pattern index for each song position
	RestartPosition byte

	// Instruments holds the 31 instruments of the file. Notes refer to
	// instruments with a 1-based index, 0 means "no change".
	Instruments []Instrument
	Patterns    []Pattern
}

// Instrument holds the header and sample data of one instrument.
type Instrument struct {
	Name      string
	Length    int // declared sample length in bytes
	Finetune  int // -8..7
	Volume    int // default volume, 0..64
	LoopStart int // in bytes
	LoopLen   int // in bytes
	Data      []int8
}

// Looped reports whether the instrument has a loop region.
func (ins *Instrument) Looped() bool {
	return ins.LoopStart != 0 || ins.LoopLen > 2
}

// loopEnd returns the end of the loop region, limited to the available
// sample data.
func (ins *Instrument) loopEnd() int {
	return min(ins.LoopStart+ins.LoopLen, len(ins.Data))
}

func (ins Instrument) String() string {
	return fmt.Sprintf(
		"\tName:\t\t%s\n"+
			"\tLength:\t\t%d\n"+
			"\tFinetune:\t%d\n"+
			"\tVolume:\t\t%d\n"+
			"\tLoop Start:\t%d\n"+
			"\tLoop Len:\t%d\n", ins.Name, ins.Length, ins.Finetune, ins.Volume, ins.LoopStart, ins.LoopLen,
	)
}

// Pattern is a block of 64 rows.
type Pattern [rowsPerPattern]Row

// Row holds one note for each of the 4 channels.
type Row [numChannels]Note

// Note is a decoded pattern cell.
type Note struct {
	Instrument int    // 1-based, 0 = no change
	Period     int    // Amiga period, 0 = no change
	Effect     Effect // command, extended commands are 0xE0-0xEF
	Param      byte   // effect data, only the low nibble for extended commands
}

func (n Note) hasEffect() bool {
	return n.Effect != 0 || n.Param != 0
}

func (n Note) hi() int { return int(n.Param >> 4) }
func (n Note) lo() int { return int(n.Param & 0xF) }

// instrument returns the instrument a note refers to, or nil if the note has
// no instrument or the index is out of range.
func (s *Song) instrument(n int) *Instrument {
	if n < 1 || n > len(s.Instruments) {
		return nil
	}
	return &s.Instruments[n-1]
}

// Clone returns a deep copy of the song.
func (s *Song) Clone() *Song {
	return clone.Clone(s)
}

// NewSongFromBytes decodes a 4 channel ProTracker MOD (M.K.) file.
//
// Instrument headers, the order table and pattern data must be present. If
// the file ends before all sample data is read the trailing samples are
// truncated, some MODs in the wild are short by a few bytes.
func NewSongFromBytes(songBytes []byte) (*Song, error) {
	if len(songBytes) < patternOffset {
		return nil, tooShort(len(songBytes))
	}
	if !bytes.Equal(songBytes[magicOffset:magicOffset+len(modMagic)], modMagic) {
		return nil, &FormatError{Reason: ErrBadMagic.Error(), Offset: magicOffset}
	}

	song := &Song{
		Title:           cleanName(songBytes[:songNameLen]),
		Instruments:     make([]Instrument, numInstruments),
		RestartPosition: songBytes[restartOffset],
	}

	for i := range song.Instruments {
		off := instrumentOffset + i*instrumentLen
		song.Instruments[i] = readInstrumentHeader(songBytes[off : off+instrumentLen])
	}

	// The song length says how many orders are used, but the pattern count
	// comes from the largest index anywhere in the table.
	orderTable := songBytes[orderTableOffset : orderTableOffset+orderTableLen]
	songLen := min(int(songBytes[songLengthOffset]), orderTableLen)
	song.Orders = make([]byte, songLen)
	copy(song.Orders, orderTable)

	patterns := 0
	for _, o := range orderTable {
		patterns = max(patterns, int(o))
	}
	patterns++ // num patterns = max_pattern_idx + 1

	song.Patterns = make([]Pattern, patterns)
	for i := range song.Patterns {
		off := patternOffset + i*patternBytes
		if off+patternBytes > len(songBytes) {
			return nil, tooShort(off)
		}
		decodePattern(&song.Patterns[i], songBytes[off:off+patternBytes])
	}

	// Sample data follows the patterns in instrument order.
	off := patternOffset + patterns*patternBytes
	for i := range song.Instruments {
		ins := &song.Instruments[i]
		n := min(ins.Length, max(len(songBytes)-off, 0))
		ins.Data = make([]int8, n)
		for j := 0; j < n; j++ {
			ins.Data[j] = int8(songBytes[off+j])
		}
		off += n
	}

	return song, nil
}

func readInstrumentHeader(b []byte) Instrument {
	data := struct {
		Name      [22]byte
		Length    uint16
		Finetune  uint8
		Volume    uint8
		LoopStart uint16
		LoopLen   uint16
	}{}

	// The slice is always instrumentLen bytes so this cannot fail.
	_ = binary.Read(bytes.NewReader(b), binary.BigEndian, &data)

	// Finetune is a signed nibble, 8..15 are -8..-1
	ft := int(data.Finetune & 0xF)
	if ft > 7 {
		ft -= 16
	}

	return Instrument{
		Name:      cleanName(data.Name[:]),
		Length:    int(data.Length) * 2,
		Finetune:  ft,
		Volume:    int(data.Volume),
		LoopStart: int(data.LoopStart) * 2,
		LoopLen:   int(data.LoopLen) * 2,
	}
}

func decodePattern(p *Pattern, b []byte) {
	for r := range p {
		for c := range p[r] {
			off := r*bytesPerRow + c*bytesPerNote
			p[r][c] = noteFromMODBytes(b[off : off+bytesPerNote])
		}
	}
}

// noteFromMODBytes unpacks a pattern cell:
//
//	 Byte 0   Byte 1   Byte 2   Byte 3
//	iiiipppp pppppppp iiiieeee eeeeeeee
//
// Extended commands (Exy) are rebased to 0xEx with y as the parameter.
func noteFromMODBytes(nb []byte) Note {
	n := Note{
		Instrument: int(nb[0]&0xF0 | nb[2]>>4),
		Period:     int(nb[0]&0xF)<<8 | int(nb[1]),
		Effect:     Effect(nb[2] & 0xF),
		Param:      nb[3],
	}
	if n.Effect == effectExtended {
		n.Effect = 0xE0 | Effect(n.Param>>4)
		n.Param &= 0xF
	}
	return n
}

// Strips trailing 0x00 bytes and replaces any non ASCII character with a space
func cleanName(in []byte) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 127 {
			return ' '
		}
		return r
	}, strings.TrimRight(string(in), "\x00"))
}
