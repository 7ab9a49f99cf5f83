package protracker

import (
	"log/slog"
	"slices"
	"sync"
)

// Diagnostics records effects the player does not implement and song data
// that points outside the song. Each distinct report is logged once and
// counted every time it occurs.
//
// The player reports from the audio path, so logging is limited to the first
// occurrence. Diagnostics is safe for concurrent use.
type Diagnostics struct {
	logger *slog.Logger

	mu          sync.Mutex
	unsupported map[Effect]int
	anomalies   map[string]int
}

// NewDiagnostics returns a registry that logs to logger. A nil logger uses
// slog.Default().
func NewDiagnostics(logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{
		logger:      logger,
		unsupported: make(map[Effect]int),
		anomalies:   make(map[string]int),
	}
}

// ReportUnsupported counts a note using effect. The first report of each
// effect is logged.
func (d *Diagnostics) ReportUnsupported(effect Effect) {
	d.mu.Lock()
	n := d.unsupported[effect]
	d.unsupported[effect] = n + 1
	d.mu.Unlock()

	if n == 0 {
		d.logger.Warn("unsupported effect", "effect", effect.String())
	}
}

// ReportAnomaly counts an out of range reference found while playing
// position and row. The first report of each kind is logged.
func (d *Diagnostics) ReportAnomaly(kind string, position, row int) {
	d.mu.Lock()
	n := d.anomalies[kind]
	d.anomalies[kind] = n + 1
	d.mu.Unlock()

	if n == 0 {
		d.logger.Warn(kind, "position", position, "row", row)
	}
}

// Unsupported returns the distinct unsupported effects seen, sorted.
func (d *Diagnostics) Unsupported() []Effect {
	d.mu.Lock()
	defer d.mu.Unlock()

	effects := make([]Effect, 0, len(d.unsupported))
	for e := range d.unsupported {
		effects = append(effects, e)
	}
	slices.Sort(effects)
	return effects
}

// Count returns how many times effect was reported.
func (d *Diagnostics) Count(effect Effect) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unsupported[effect]
}

// Anomalies returns how many times kind was reported.
func (d *Diagnostics) Anomalies(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.anomalies[kind]
}

// Reset forgets everything reported so far. Effects seen again are logged
// again.
func (d *Diagnostics) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.unsupported)
	clear(d.anomalies)
}
