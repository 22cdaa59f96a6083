package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"resono.click/internal/engine"
	"resono.click/internal/event"
)

// barGlyphs maps normalized magnitudes to terminal block characters
var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// renderer owns the terminal line during playback. On an interactive
// terminal it redraws a single status line in place; on a pipe it only
// prints state changes so logs stay greppable.
type renderer struct {
	out         io.Writer
	barCount    int
	interactive bool

	bars    []float64
	state   string
	elapsed time.Duration
	start   time.Time
}

func newRenderer(out io.Writer, barCount int, interactive bool) *renderer {
	return &renderer{
		out:         out,
		barCount:    barCount,
		interactive: interactive,
		state:       engine.StateInactive.String(),
		start:       time.Now(),
	}
}

// Start announces the track
func (r *renderer) Start(path string) {
	fmt.Fprintf(r.out, "Playing %s\n", path)
	if r.interactive {
		fmt.Fprint(r.out, "Press q to quit\r\n")
	}
}

// Finish terminates the in-place status line
func (r *renderer) Finish() {
	if r.interactive {
		fmt.Fprint(r.out, "\r\n")
	}
}

// RenderState reacts to a stream state change
func (r *renderer) RenderState(ev event.AudioStateEvent) {
	r.state = ev.Kind.String()
	if !r.interactive {
		if ev.Err != nil {
			fmt.Fprintf(r.out, "state: %s (%v)\n", r.state, ev.Err)
		} else {
			fmt.Fprintf(r.out, "state: %s\n", r.state)
		}
		return
	}
	r.draw()
}

// RenderSpectrum redraws the bar line with a fresh frame
func (r *renderer) RenderSpectrum(bars []float64) {
	if !r.interactive {
		return
	}
	r.bars = bars
	r.draw()
}

// RenderTick refreshes the elapsed time display
func (r *renderer) RenderTick(at time.Time, state engine.State) {
	r.elapsed = at.Sub(r.start)
	r.state = state.String()
	if !r.interactive {
		return
	}
	r.draw()
}

// draw paints the single in-place status line
func (r *renderer) draw() {
	var b strings.Builder
	b.WriteString("\r")
	fmt.Fprintf(&b, "%7s  %-9s ", formatElapsed(r.elapsed), r.state)
	b.WriteString(renderBars(r.bars, r.barCount))
	fmt.Fprint(r.out, b.String())
}

// renderBars folds a spectrum frame into n display glyphs. n <= 0 keeps
// the frame's own resolution.
func renderBars(bars []float64, n int) string {
	if len(bars) == 0 {
		return ""
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}

	var b strings.Builder
	for i := 0; i < n; i++ {
		// Max pooling over the bar span keeps transients visible at any
		// display width
		lo := i * len(bars) / n
		hi := (i + 1) * len(bars) / n
		if hi <= lo {
			hi = lo + 1
		}
		var peak float64
		for j := lo; j < hi && j < len(bars); j++ {
			if bars[j] > peak {
				peak = bars[j]
			}
		}
		b.WriteRune(glyphFor(peak))
	}
	return b.String()
}

// glyphFor maps one normalized magnitude to its block character
func glyphFor(v float64) rune {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	idx := int(v * float64(len(barGlyphs)-1))
	return barGlyphs[idx]
}

// formatElapsed renders a duration as m:ss
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
