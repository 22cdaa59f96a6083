package spectrum

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"resono.click/internal/decode"
	"resono.click/internal/event"
)

// Config fixes the analysis parameters. The band layout, and therefore
// the published bar count, is fixed for the process lifetime.
type Config struct {
	SampleRate uint32
	Channels   int
	// WindowSize is the FFT length in mono samples
	WindowSize int
	// DecayFactor multiplies a bar on every frame where its target is
	// below its current value (slow fall)
	DecayFactor float64
	// AttackBlend is the weight of the new target when a bar rises
	// (fast attack)
	AttackBlend float64
	// BandRatio is the logarithmic spacing between adjacent bands
	BandRatio float64
	// PeakRelease shrinks the per-band auto-gain peak each frame
	PeakRelease float64
	MinFreq     float64
	MaxFreq     float64
	// TapCapacity bounds the sample chunk tap, in chunks
	TapCapacity int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 44100
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 1024
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		c.DecayFactor = 0.85
	}
	if c.AttackBlend <= 0 || c.AttackBlend > 1 {
		c.AttackBlend = 0.5
	}
	if c.BandRatio <= 1 {
		c.BandRatio = 1.05
	}
	if c.PeakRelease <= 0 || c.PeakRelease >= 1 {
		c.PeakRelease = 0.99
	}
	if c.MinFreq <= 0 {
		c.MinFreq = 20
	}
	if c.MaxFreq <= c.MinFreq {
		c.MaxFreq = 20000
	}
	if c.TapCapacity <= 0 {
		c.TapCapacity = 8
	}
}

type band struct {
	lo, hi float64
}

// Analyzer consumes live sample chunks and publishes smoothed
// frequency-magnitude frames. Publication is non-blocking: a slow
// consumer only ever sees the newest frame. Malformed or silent input
// never raises an error; silence makes the bars decay toward zero under
// the normal smoothing rule.
type Analyzer struct {
	cfg Config
	in  chan decode.Chunk
	bus *event.Bus

	fft    *fourier.FFT
	coeffs []complex128
	hann   []float64

	mono   []float64 // latest WindowSize mono samples
	filled int

	bands []band
	peaks []float64
	bars  []float64
	seq   uint64
}

// New builds an analyzer for the fixed stream parameters
func New(cfg Config, bus *event.Bus) *Analyzer {
	cfg.applyDefaults()

	a := &Analyzer{
		cfg:    cfg,
		in:     make(chan decode.Chunk, cfg.TapCapacity),
		bus:    bus,
		fft:    fourier.NewFFT(cfg.WindowSize),
		coeffs: make([]complex128, cfg.WindowSize/2+1),
		hann:   window.Hann(ones(cfg.WindowSize)),
		mono:   make([]float64, 0, cfg.WindowSize),
	}
	a.buildBands()
	a.peaks = make([]float64, len(a.bands))
	for i := range a.peaks {
		a.peaks[i] = 1e-3
	}
	a.bars = make([]float64, len(a.bands))

	slog.Debug("spectrum analyzer created",
		"window_size", cfg.WindowSize,
		"sample_rate", cfg.SampleRate,
		"bands", len(a.bands))

	return a
}

func ones(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// buildBands lays out logarithmically spaced frequency bands, each at
// least one FFT bin wide
func (a *Analyzer) buildBands() {
	freqRes := float64(a.cfg.SampleRate) / float64(a.cfg.WindowSize)
	freq := a.cfg.MinFreq
	for freq < a.cfg.MaxFreq {
		next := freq * a.cfg.BandRatio
		if next < freq+freqRes {
			next = freq + freqRes
		}
		hi := next
		if hi > a.cfg.MaxFreq {
			hi = a.cfg.MaxFreq
		}
		a.bands = append(a.bands, band{lo: freq, hi: hi})
		freq = next
	}
}

// BarCount returns the fixed number of published bars
func (a *Analyzer) BarCount() int {
	return len(a.bands)
}

// Tap returns the channel the engine fans sample chunks into
func (a *Analyzer) Tap() chan<- decode.Chunk {
	return a.in
}

// Run consumes the tap until the done channel closes. Intended to run on
// its own goroutine.
func (a *Analyzer) Run(done <-chan struct{}) {
	slog.Debug("spectrum analyzer running")
	for {
		select {
		case <-done:
			slog.Debug("spectrum analyzer stopped", "frames_published", a.seq)
			return
		case c := <-a.in:
			a.process(c)
			a.publish()
		}
	}
}

// process folds one chunk into the rolling mono window and recomputes
// the bars
func (a *Analyzer) process(c decode.Chunk) {
	ch := a.cfg.Channels
	if ch <= 0 || len(c.Samples) < ch {
		a.decayAll()
		return
	}

	frames := len(c.Samples) / ch
	for f := 0; f < frames; f++ {
		var sum float64
		for i := 0; i < ch; i++ {
			sum += float64(c.Samples[f*ch+i])
		}
		a.mono = append(a.mono, sum/float64(ch)/32768.0)
	}
	// Keep only the latest window worth of samples
	if excess := len(a.mono) - a.cfg.WindowSize; excess > 0 {
		a.mono = a.mono[excess:]
	}
	a.filled = len(a.mono)

	if a.filled < a.cfg.WindowSize {
		a.decayAll()
		return
	}
	a.analyze()
}

// analyze windows the latest samples, transforms them, and folds the bin
// magnitudes into the smoothed display bars
func (a *Analyzer) analyze() {
	windowed := make([]float64, a.cfg.WindowSize)
	for i := range windowed {
		windowed[i] = a.mono[i] * a.hann[i]
	}

	a.coeffs = a.fft.Coefficients(a.coeffs, windowed)

	freqRes := float64(a.cfg.SampleRate) / float64(a.cfg.WindowSize)
	half := float64(a.cfg.WindowSize) / 2

	for i, b := range a.bands {
		var sum float64
		var count int
		lo := int(b.lo / freqRes)
		hi := int(b.hi / freqRes)
		if lo < 1 {
			lo = 1 // skip DC
		}
		if hi > len(a.coeffs)-1 {
			hi = len(a.coeffs) - 1
		}
		for bin := lo; bin <= hi; bin++ {
			f := float64(bin) * freqRes
			if f < b.lo || f >= b.hi {
				continue
			}
			re := real(a.coeffs[bin])
			im := imag(a.coeffs[bin])
			sum += re*re + im*im
			count++
		}

		var normalized float64
		if count > 0 {
			normalized = math.Sqrt(sum/float64(count)) / half
		}

		// Per-band auto-gain: instant attack, slow release
		if normalized > a.peaks[i] {
			a.peaks[i] = normalized
		} else {
			a.peaks[i] *= a.cfg.PeakRelease
			if a.peaks[i] < 1e-3 {
				a.peaks[i] = 1e-3
			}
		}

		relative := normalized / a.peaks[i]
		if relative > 1 {
			relative = 1
		}

		if relative > a.bars[i] {
			a.bars[i] = a.bars[i]*(1-a.cfg.AttackBlend) + relative*a.cfg.AttackBlend
		} else {
			a.bars[i] *= a.cfg.DecayFactor
		}
	}
}

// decayAll applies the fall rule to every bar; used when the window is
// not yet full or the chunk carries no usable frames
func (a *Analyzer) decayAll() {
	for i := range a.bars {
		a.bars[i] *= a.cfg.DecayFactor
	}
}

// publish ships an immutable snapshot of the bars; superseded frames are
// dropped by the bus, never merged
func (a *Analyzer) publish() {
	if a.bus == nil {
		return
	}
	a.seq++
	bars := make([]float64, len(a.bars))
	copy(bars, a.bars)
	a.bus.TryPublishSpectrum(event.SpectrumEvent{
		Bars: bars,
		Seq:  a.seq,
		At:   time.Now(),
	})
}
