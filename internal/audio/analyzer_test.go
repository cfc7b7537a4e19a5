package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// sineWindow returns exactly one FFT window of 440Hz stereo PCM
func sineWindow(amplitude float64) []byte {
	buf := make([]byte, fftSize*4)
	for i := 0; i < fftSize; i++ {
		s := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/44100))
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(s))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(s))
	}
	return buf
}

func TestAnalyzerInactiveWithoutCallback(t *testing.T) {
	a := NewAnalyzer(44100, 2)

	if a.Active() {
		t.Error("Expected analyzer inactive without a callback")
	}

	// Loud signal, but nobody subscribed
	a.Process(sineWindow(16000), 0)

	for i, v := range a.Bands() {
		if v != 0 {
			t.Errorf("Expected band %d to stay 0 without a callback, got %d", i, v)
		}
	}
	if levels := a.Levels(); levels[0] != 0 || levels[1] != 0 {
		t.Errorf("Expected zero levels without a callback, got %v", levels)
	}
}

func TestAnalyzerPushesFrames(t *testing.T) {
	a := NewAnalyzer(44100, 2)

	var calls int
	var gotBands []uint8
	var gotLevels [2]float64
	var gotPosition float64
	a.SetCallback(func(bands []uint8, levels [2]float64, position float64) {
		calls++
		gotBands = bands
		gotLevels = levels
		gotPosition = position
	})

	if !a.Active() {
		t.Error("Expected analyzer active with a callback")
	}

	// Exactly one full window produces exactly one frame
	a.Process(sineWindow(16000), 2.5)

	if calls != 1 {
		t.Fatalf("Expected 1 analysis frame, got %d", calls)
	}
	if gotPosition != 2.5 {
		t.Errorf("Expected the clock reading passed through, got %f", gotPosition)
	}
	if len(gotBands) != numBands {
		t.Fatalf("Expected %d bands, got %d", numBands, len(gotBands))
	}

	var energy int
	for _, v := range gotBands {
		energy += int(v)
	}
	if energy == 0 {
		t.Error("Expected a loud sine to register in the bands")
	}

	// RMS of a 16000-amplitude sine is ~0.345; one smoothing step from
	// zero lands near 0.17
	if gotLevels[0] < 0.1 || gotLevels[0] > 0.3 {
		t.Errorf("Expected left level near 0.17, got %f", gotLevels[0])
	}
	if math.Abs(gotLevels[0]-gotLevels[1]) > 1e-9 {
		t.Errorf("Expected identical channel levels, got %v", gotLevels)
	}
}

func TestAnalyzerReset(t *testing.T) {
	a := NewAnalyzer(44100, 2)
	a.SetCallback(func([]uint8, [2]float64, float64) {})
	a.Process(sineWindow(16000), 0)

	var energy int
	for _, v := range a.Bands() {
		energy += int(v)
	}
	if energy == 0 {
		t.Fatal("Expected nonzero bands before reset")
	}

	a.Reset()

	for i, v := range a.Bands() {
		if v != 0 {
			t.Errorf("Expected band %d to be 0 after reset, got %d", i, v)
		}
	}
	if levels := a.Levels(); levels[0] != 0 || levels[1] != 0 {
		t.Errorf("Expected zero levels after reset, got %v", levels)
	}
}

func TestAnalyzerDisable(t *testing.T) {
	a := NewAnalyzer(44100, 2)

	var calls int
	a.SetCallback(func([]uint8, [2]float64, float64) { calls++ })
	a.Process(sineWindow(16000), 0)
	if calls != 1 {
		t.Fatalf("Expected 1 frame while subscribed, got %d", calls)
	}

	a.SetCallback(nil)
	if a.Active() {
		t.Error("Expected analyzer inactive after unsubscribe")
	}
	a.Process(sineWindow(16000), 0)
	if calls != 1 {
		t.Errorf("Expected no frames after unsubscribe, got %d", calls)
	}
}
