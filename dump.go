package protracker

import (
	"fmt"
	"io"
	"strings"
)

// NoteData returns the note data for a specific position and row, or nil if
// the requested position is invalid.
func (s *Song) NoteData(position, row int) []ChannelNoteData {
	if position < 0 || row < 0 || position >= len(s.Orders) || row >= rowsPerPattern {
		return nil
	}
	pattern := int(s.Orders[position])
	if pattern >= len(s.Patterns) {
		return nil
	}

	nd := make([]ChannelNoteData, numChannels)
	for i, n := range s.Patterns[pattern][row] {
		nd[i] = ChannelNoteData{
			Note:       noteStrFromPeriod(n.Period),
			Period:     n.Period,
			Instrument: n.Instrument,
			Effect:     n.Effect,
			Param:      n.Param,
		}
	}
	return nd
}

// Dump writes a human readable listing of the song to w: the header, the
// instruments that carry sample data and every pattern.
func (s *Song) Dump(w io.Writer) error {
	dw := &dumpWriter{w: w}

	dw.printf("Title:\t\t%s\n", s.Title)
	dw.printf("Patterns:\t%d\n", len(s.Patterns))
	dw.printf("Orders:\t\t%d %v\n", len(s.Orders), s.Orders)
	dw.printf("Restart:\t%d\n", s.RestartPosition)
	dw.printf("\n")

	for i, ins := range s.Instruments {
		if ins.Length == 0 && ins.Name == "" {
			continue
		}
		dw.printf("Instrument %d (x%02X)\n%s", i+1, i+1, ins)
		if len(ins.Data) < ins.Length {
			dw.printf("\tTruncated:\t%d bytes\n", ins.Length-len(ins.Data))
		}
		dw.printf("\n")
	}

	for i := range s.Patterns {
		dw.printf("Pattern %d (x%02X)\n", i, i)
		for r, row := range s.Patterns[i] {
			cells := make([]string, len(row))
			for c, n := range row {
				nd := ChannelNoteData{
					Note:       noteStrFromPeriod(n.Period),
					Instrument: n.Instrument,
					Effect:     n.Effect,
					Param:      n.Param,
				}
				cells[c] = nd.String()
			}
			dw.printf("%02X: %s\n", r, strings.Join(cells, " | "))
		}
		dw.printf("\n")
	}

	return dw.err
}

// dumpWriter remembers the first write error so Dump can check once.
type dumpWriter struct {
	w   io.Writer
	err error
}

func (dw *dumpWriter) printf(format string, a ...any) {
	if dw.err != nil {
		return
	}
	_, dw.err = fmt.Fprintf(dw.w, format, a...)
}
