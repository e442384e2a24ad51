// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testPeakOptions = PeakOptions{Threshold: 30, MinFrequency: 60, DisplayHeight: 360}

// spike builds a spectrum of zeros with value v at index i.
func spike(width, i int, v float64) LogSpectrum {
	s := make(LogSpectrum, width)
	s[i] = v
	return s
}

func TestPeakDetectorInitialState(t *testing.T) {
	d := NewPeakDetector(DefaultNoteTable(), testPeakOptions)
	if got := d.Peak(); got != (PeakInfo{}) {
		t.Errorf("initial peak = %+v, want zero value", got)
	}
	if d.State() != Held {
		t.Errorf("initial state = %s", d.State())
	}
}

func TestPeakDetectorGate(t *testing.T) {
	freqs := []float64{30, 55, 110, 220, 440, 880}

	tests := []struct {
		name     string
		spectrum LogSpectrum
		want     PeakInfo
		state    PeakState
	}{
		{"loud A4 updates", spike(6, 4, 1), PeakInfo{440, "A4"}, Updated},
		{"quiet frame holds", spike(6, 2, 0.05), PeakInfo{440, "A4"}, Held},
		{"below threshold holds", spike(6, 3, 29.0/360), PeakInfo{440, "A4"}, Held},
		{"headroom keeps a column under the gate", spike(6, 3, 31.0/360), PeakInfo{440, "A4"}, Held},
		{"low frequency holds", spike(6, 1, 1), PeakInfo{440, "A4"}, Held},
		{"loud A2 updates", spike(6, 2, 0.5), PeakInfo{110, "A2"}, Updated},
		{"just over the gate updates", spike(6, 3, 32.0/(360*DisplayHeadroom)), PeakInfo{220, "A3"}, Updated},
		{"silence holds", make(LogSpectrum, 6), PeakInfo{220, "A3"}, Held},
	}

	// Cases run in order against one detector: Held keeps whatever the last
	// update produced.
	d := NewPeakDetector(DefaultNoteTable(), testPeakOptions)
	for _, tt := range tests {
		got := d.Detect(tt.spectrum, freqs)
		if got != tt.want {
			t.Errorf("%s: Detect = %+v, want %+v", tt.name, got, tt.want)
		}
		if d.State() != tt.state {
			t.Errorf("%s: state = %s, want %s", tt.name, d.State(), tt.state)
		}
	}
}

func TestPeakDetectorUnknownNote(t *testing.T) {
	d := NewPeakDetector(NoteTable{}, testPeakOptions)
	got := d.Detect(spike(3, 1, 1), []float64{20, 440, 1000})
	if got.Frequency != 440 || got.Note != "" {
		t.Errorf("Detect = %+v, want 440 Hz with empty note", got)
	}
}

func TestPeakDetectorEmptyInput(t *testing.T) {
	d := NewPeakDetector(nil, testPeakOptions)
	if got := d.Detect(nil, nil); got != (PeakInfo{}) || d.State() != Held {
		t.Errorf("empty input: %+v %s", got, d.State())
	}
}

func TestPeakFromAnalyzedTone(t *testing.T) {
	a := newTestAnalyzer(t)
	d := NewPeakDetector(DefaultNoteTable(), testPeakOptions)

	got := d.Detect(a.Analyze(sine(testFrameSize, 440, 16000)), a.Frequencies())
	if d.State() != Updated {
		t.Fatalf("loud tone should update the peak")
	}
	if math.Abs(got.Frequency-440) > 4 || got.Note != "A4" {
		t.Errorf("peak = %+v, want ~440 Hz A4", got)
	}

	held := d.Detect(a.Analyze(make([]float64, testFrameSize)), a.Frequencies())
	if held != got || d.State() != Held {
		t.Errorf("silence should hold the previous peak, got %+v %s", held, d.State())
	}
}

func TestNoteNumber(t *testing.T) {
	tests := []struct {
		freq float64
		want int
	}{
		{440, 69},
		{261.63, 60},
		{466.16, 70},
		{27.5, 21},
		{452, 69}, // Within half a semitone of A4.
		{4186.01, 108},
	}
	for _, tt := range tests {
		if got := NoteNumber(tt.freq); got != tt.want {
			t.Errorf("NoteNumber(%g) = %d, want %d", tt.freq, got, tt.want)
		}
	}
}

func TestDefaultNoteTable(t *testing.T) {
	table := DefaultNoteTable()
	for note, want := range map[int]string{0: "C-1", 60: "C4", 61: "C#4", 69: "A4", 127: "G9"} {
		if got := table.Name(note); got != want {
			t.Errorf("Name(%d) = %q, want %q", note, got, want)
		}
	}
	if got := table.Name(200); got != "" {
		t.Errorf("Name(200) = %q, want empty", got)
	}
}

func TestParseNoteTable(t *testing.T) {
	input := "69 A4\n60 C4\nbad\n\n# comment\n70\n71 B4 extra\n"
	table, skipped, err := ParseNoteTable(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(table) != 3 || table[69] != "A4" || table[71] != "B4" {
		t.Errorf("table = %v", table)
	}
}

func TestLoadNoteTable(t *testing.T) {
	t.Run("missing file falls back", func(t *testing.T) {
		table := LoadNoteTable(filepath.Join(t.TempDir(), "none.map"))
		if table.Name(69) != "A4" {
			t.Errorf("expected built-in table, got %v", table.Name(69))
		}
	})

	t.Run("file entries used", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "note.map")
		if err := os.WriteFile(path, []byte("69 La4\n"), 0644); err != nil {
			t.Fatal(err)
		}
		table := LoadNoteTable(path)
		if table.Name(69) != "La4" || table.Name(60) != "" {
			t.Errorf("table = %v", table)
		}
	})

	t.Run("garbage falls back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "note.map")
		if err := os.WriteFile(path, []byte("not a table\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if LoadNoteTable(path).Name(69) != "A4" {
			t.Error("expected built-in table for a file with no usable lines")
		}
	})
}

func TestPeakDetectZeroAllocs(t *testing.T) {
	d := NewPeakDetector(DefaultNoteTable(), testPeakOptions)
	s := spike(6, 4, 1)
	freqs := []float64{30, 55, 110, 220, 440, 880}
	allocs := testing.AllocsPerRun(100, func() {
		d.Detect(s, freqs)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Detect, got %.1f", allocs)
	}
}

func TestNoteFor(t *testing.T) {
	table := DefaultNoteTable()
	if got := table.NoteFor(440); got != "A4" {
		t.Errorf("NoteFor(440) = %q", got)
	}
	if got := table.NoteFor(0); got != "" {
		t.Errorf("NoteFor(0) = %q, want empty", got)
	}
	if got := NoteTable(nil).NoteFor(440); got != "" {
		t.Errorf("nil table NoteFor = %q", got)
	}
}
