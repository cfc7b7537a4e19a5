package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FFT size - must be power of 2
	// At 44100Hz stereo this gives ~21 analysis frames/sec
	fftSize = 2048
	// Number of frequency bands pushed to observers
	numBands = 64
	// Smoothing factor for temporal smoothing between frames
	smoothingFactor = 0.5
)

// AudioDataCallback receives analysis frames as they are produced.
// position is the render-clock reading carried in from the stream feeding
// Process, so observers never have to query the clock themselves.
type AudioDataCallback func(bands []uint8, levels [2]float64, position float64)

// Analyzer performs windowed FFT analysis and RMS level metering on the
// rendered stream. Analysis only runs while a callback is registered, so
// the render path pays nothing when no observer is subscribed.
type Analyzer struct {
	mu sync.RWMutex

	fft *fourier.FFT

	// Sample buffer for collecting enough samples for FFT
	sampleBuffer []float64
	bufferIndex  int

	// Window function (Hanning)
	window []float64

	// Output: frequency bands (0-255) and per-channel RMS levels (0-1)
	bands         []float64
	smoothedBands []float64
	levels        [2]float64

	sampleRate int
	channels   int

	callback AudioDataCallback
}

// NewAnalyzer creates an analyzer for the given stream format
func NewAnalyzer(sampleRate, channels int) *Analyzer {
	// Create Hanning window
	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}

	return &Analyzer{
		fft:           fourier.NewFFT(fftSize),
		sampleBuffer:  make([]float64, fftSize),
		window:        window,
		bands:         make([]float64, numBands),
		smoothedBands: make([]float64, numBands),
		sampleRate:    sampleRate,
		channels:      channels,
	}
}

// Process consumes 16-bit PCM bytes from the rendered stream and updates
// bands and levels. position is the render clock at the tail of data and
// is handed unchanged to the callback. No-op while no callback is
// registered.
func (a *Analyzer) Process(data []byte, position float64) {
	var shouldNotify bool
	var bands []uint8
	var levels [2]float64

	a.mu.Lock()

	callback := a.callback
	if callback == nil {
		a.mu.Unlock()
		return
	}

	bytesPerSample := 2 // 16-bit
	samplesPerFrame := a.channels

	var sumSq [2]float64
	frames := 0

	for i := 0; i+bytesPerSample*samplesPerFrame <= len(data); i += bytesPerSample * samplesPerFrame {
		var sum float64
		for ch := 0; ch < samplesPerFrame; ch++ {
			offset := i + ch*bytesPerSample
			// Read 16-bit little-endian sample, normalize to -1.0 to 1.0
			sample := int16(data[offset]) | int16(data[offset+1])<<8
			normalized := float64(sample) / 32768.0
			sum += normalized

			if ch < 2 {
				sumSq[ch] += normalized * normalized
			}
		}
		frames++

		// Mix channels down to mono for the FFT
		monoSample := sum / float64(samplesPerFrame)

		// Add to circular buffer
		a.sampleBuffer[a.bufferIndex] = monoSample
		a.bufferIndex = (a.bufferIndex + 1) % fftSize

		// When buffer wraps, we have a full window - compute FFT
		if a.bufferIndex == 0 {
			a.computeFFT()
			shouldNotify = true
		}
	}

	if frames > 0 {
		left := math.Sqrt(sumSq[0] / float64(frames))
		right := left
		if samplesPerFrame > 1 {
			right = math.Sqrt(sumSq[1] / float64(frames))
		}
		a.levels[0] = smoothingFactor*a.levels[0] + (1-smoothingFactor)*left
		a.levels[1] = smoothingFactor*a.levels[1] + (1-smoothingFactor)*right
	}

	if shouldNotify {
		bands = clampBands(a.smoothedBands)
		levels = a.levels
	}

	a.mu.Unlock()

	// Call callback OUTSIDE of lock for true real-time push
	if shouldNotify && callback != nil {
		callback(bands, levels, position)
	}
}

// Active reports whether a callback is registered.
func (a *Analyzer) Active() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.callback != nil
}

// computeFFT performs FFT on the current sample buffer
func (a *Analyzer) computeFFT() {
	// Apply window function to samples
	windowed := make([]float64, fftSize)
	for i := 0; i < fftSize; i++ {
		// Read from circular buffer in correct order
		idx := (a.bufferIndex + i) % fftSize
		windowed[i] = a.sampleBuffer[idx] * a.window[i]
	}

	// Compute FFT
	coeffs := a.fft.Coefficients(nil, windowed)

	// Compute magnitude spectrum (only use first half - Nyquist)
	// Group into logarithmically-spaced frequency bands
	nyquist := fftSize / 2
	freqPerBin := float64(a.sampleRate) / float64(fftSize)

	// Clear bands
	for i := range a.bands {
		a.bands[i] = 0
	}

	// Map FFT bins to frequency bands using logarithmic scale for better
	// resolution at the perceptually relevant low end
	minFreq := 20.0
	maxFreq := 20000.0
	if float64(a.sampleRate)/2 < maxFreq {
		maxFreq = float64(a.sampleRate) / 2
	}

	logMin := math.Log10(minFreq)
	logMax := math.Log10(maxFreq)
	logRange := logMax - logMin

	// For each band, find the frequency range and sum magnitudes
	bandCounts := make([]int, numBands)

	for bin := 1; bin < nyquist; bin++ {
		freq := float64(bin) * freqPerBin
		if freq < minFreq || freq > maxFreq {
			continue
		}

		// Map frequency to band index (logarithmic)
		logFreq := math.Log10(freq)
		bandFloat := (logFreq - logMin) / logRange * float64(numBands)
		band := int(bandFloat)
		if band >= numBands {
			band = numBands - 1
		}
		if band < 0 {
			band = 0
		}

		// Compute magnitude
		real := real(coeffs[bin])
		imag := imag(coeffs[bin])
		magnitude := math.Sqrt(real*real + imag*imag)

		// Convert to dB, normalized to 0-255 over a -60dB to 0dB range
		db := 20 * math.Log10(magnitude/float64(fftSize)+1e-10)
		normalized := (db + 60) / 60 * 255
		if normalized < 0 {
			normalized = 0
		}
		if normalized > 255 {
			normalized = 255
		}

		a.bands[band] += normalized
		bandCounts[band]++
	}

	// Average each band
	for i := range a.bands {
		if bandCounts[i] > 0 {
			a.bands[i] /= float64(bandCounts[i])
		}
	}

	// Spread energy to adjacent bands to fill gaps where no FFT bins map
	// directly
	spreadBands := make([]float64, numBands)
	for i := range a.bands {
		spreadBands[i] = a.bands[i]
		if i > 0 {
			spreadBands[i] += a.bands[i-1] * 0.3
		}
		if i < numBands-1 {
			spreadBands[i] += a.bands[i+1] * 0.3
		}
		if spreadBands[i] > 255 {
			spreadBands[i] = 255
		}
	}

	// Apply temporal smoothing
	for i := range a.smoothedBands {
		a.smoothedBands[i] = smoothingFactor*a.smoothedBands[i] + (1-smoothingFactor)*spreadBands[i]
	}
}

// clampBands converts band magnitudes to the 0-255 wire form
func clampBands(in []float64) []uint8 {
	out := make([]uint8, len(in))
	for i, v := range in {
		if v > 255 {
			out[i] = 255
		} else if v < 0 {
			out[i] = 0
		} else {
			out[i] = uint8(v)
		}
	}
	return out
}

// Bands returns the current frequency bands (0-255 values)
func (a *Analyzer) Bands() []uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return clampBands(a.smoothedBands)
}

// Levels returns the current per-channel RMS levels (0-1)
func (a *Analyzer) Levels() [2]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.levels
}

// SetCallback registers a callback invoked as analysis frames complete.
// Passing nil disables analysis.
func (a *Analyzer) SetCallback(cb AudioDataCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

// Reset clears the analyzer state
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bufferIndex = 0
	for i := range a.sampleBuffer {
		a.sampleBuffer[i] = 0
	}
	for i := range a.bands {
		a.bands[i] = 0
	}
	for i := range a.smoothedBands {
		a.smoothedBands[i] = 0
	}
	a.levels = [2]float64{}
}
