package audiofeed

import (
	"math"
	"time"

	"github.com/mjibson/go-dsp/fft"

	"github.com/emotive-engine/groove/internal/tempo"
)

const (
	defaultBandCount = 8
	minFFTSize       = 256
	maxFFTSize       = 2048

	// Spectral flux normalization keeps onset strength roughly in [0,1] for
	// typical program material.
	fluxScale = 4.0
)

// Extractor turns raw sample windows into the feature frames the tempo
// estimator consumes: log-spaced band energies plus a spectral-flux onset
// strength.
type Extractor struct {
	sampleRate float64
	bandCount  int

	buffer  []complex128
	window  []float64
	prevMag []float64
}

// ExtractorConfig controls Extractor behavior.
type ExtractorConfig struct {
	SampleRate float64
	BandCount  int
}

// NewExtractor creates an Extractor with sensible defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	if cfg.BandCount <= 0 {
		cfg.BandCount = defaultBandCount
	}
	return &Extractor{
		sampleRate: cfg.SampleRate,
		bandCount:  cfg.BandCount,
	}
}

// Extract computes the feature frame for the provided mono samples.
func (e *Extractor) Extract(samples []float32, now time.Time) tempo.FeatureFrame {
	if len(samples) == 0 {
		return tempo.FeatureFrame{Timestamp: now, Bands: make([]float64, e.bandCount)}
	}

	size := nextPow2(min(len(samples), maxFFTSize))
	if size < minFFTSize {
		size = minFFTSize
	}
	e.ensureWorkspace(size)

	buffer := e.buffer[:size]
	for i := 0; i < size; i++ {
		if i < len(samples) {
			buffer[i] = complex(float64(samples[i])*e.window[i], 0)
			continue
		}
		buffer[i] = 0
	}

	spectrum := fft.FFT(buffer)
	half := size / 2

	mags := make([]float64, half)
	for i := range mags {
		mags[i] = cmag(spectrum[i])
	}

	flux := 0.0
	if len(e.prevMag) == half {
		for i, m := range mags {
			if diff := m - e.prevMag[i]; diff > 0 {
				flux += diff
			}
		}
		flux = math.Min(1.0, flux*fluxScale/float64(half))
	}
	e.prevMag = mags

	return tempo.FeatureFrame{
		Timestamp:     now,
		OnsetStrength: flux,
		Bands:         e.bandEnergies(mags),
	}
}

// bandEnergies averages magnitudes into log-spaced bands from 20 Hz up to
// the Nyquist limit.
func (e *Extractor) bandEnergies(mags []float64) []float64 {
	bands := make([]float64, e.bandCount)
	if len(mags) == 0 {
		return bands
	}

	resolution := e.sampleRate / float64(len(mags)*2)
	loHz := 20.0
	hiHz := e.sampleRate / 2
	ratio := math.Pow(hiHz/loHz, 1/float64(e.bandCount))

	for b := range bands {
		bandLo := loHz * math.Pow(ratio, float64(b))
		bandHi := bandLo * ratio

		lo := int(bandLo / resolution)
		hi := int(bandHi/resolution) + 1
		if hi > len(mags) {
			hi = len(mags)
		}
		if lo >= hi {
			continue
		}
		sum := 0.0
		for _, m := range mags[lo:hi] {
			sum += m
		}
		bands[b] = math.Min(1.0, sum/float64(hi-lo))
	}
	return bands
}

func (e *Extractor) ensureWorkspace(size int) {
	if len(e.buffer) != size {
		e.buffer = make([]complex128, size)
	}
	if len(e.window) != size {
		e.window = make([]float64, size)
		for i := range e.window {
			e.window[i] = hann(float64(i), float64(size))
		}
	}
}

func hann(i, size float64) float64 {
	return 0.5 * (1.0 - math.Cos(2.0*math.Pi*i/size))
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
