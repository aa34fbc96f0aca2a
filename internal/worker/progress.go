package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 24

// Progress draws a single status line for a stitch run: the current phase,
// a bar of loaded items and the elapsed time. Each redraw overwrites the
// previous line.
type Progress struct {
	started time.Time
	out     io.Writer
	phase   string
	unit    string
	loaded  int
	total   int
	width   int
	mu      sync.Mutex
	enabled bool
}

// NewProgress creates a bar counting total items named unit ("tiles" when
// empty). A disabled bar only records counts.
func NewProgress(total int, unit string, enabled bool) *Progress {
	if unit == "" {
		unit = "tiles"
	}
	return &Progress{
		started: time.Now(),
		out:     os.Stderr,
		unit:    unit,
		total:   total,
		enabled: enabled,
	}
}

// SetOutput redirects the bar, which writes to stderr by default.
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.out = w
	p.mu.Unlock()
}

// SetPhase labels the line with the run's state, e.g. "downloading".
func (p *Progress) SetPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.redrawLocked()
	p.mu.Unlock()
}

// Loaded records how many items have been loaded so far.
func (p *Progress) Loaded(loaded, total int) {
	p.mu.Lock()
	p.loaded = loaded
	p.total = total
	p.redrawLocked()
	p.mu.Unlock()
}

// Done redraws the final line and ends it with a newline.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.redrawLocked()
	fmt.Fprintln(p.out)
}

// Summary returns a one-line account of the run for the log.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("Loaded %d/%d %s in %s", p.loaded, p.total, p.unit, p.elapsed())
}

func (p *Progress) redrawLocked() {
	if !p.enabled {
		return
	}
	line := p.lineLocked()
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprint(p.out, "\r"+line+pad)
}

func (p *Progress) lineLocked() string {
	percent := 100
	if p.total > 0 {
		percent = p.loaded * 100 / p.total
	}
	filled := percent * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)

	phase := p.phase
	if phase == "" {
		phase = "starting"
	}
	return fmt.Sprintf("%-11s [%s] %3d%% %d/%d %s %s",
		phase, bar, percent, p.loaded, p.total, p.unit, p.elapsed())
}

func (p *Progress) elapsed() time.Duration {
	return time.Since(p.started).Round(time.Second)
}
