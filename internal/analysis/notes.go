// SPDX-License-Identifier: MIT
package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	applog "spectrumtool/internal/log"
)

// NoteTable maps MIDI note numbers to display names.
type NoteTable map[int]string

// Name returns the name for note, or "" if the table has none.
func (t NoteTable) Name(note int) string {
	return t[note]
}

// NoteFor names the note nearest to freq, or "" when the table has none.
func (t NoteTable) NoteFor(freq float64) string {
	if !(freq > 0) {
		return ""
	}
	return t.Name(NoteNumber(freq))
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// DefaultNoteTable names every MIDI note 0..127 in scientific pitch notation
// (60 is "C4", 69 is "A4").
func DefaultNoteTable() NoteTable {
	t := make(NoteTable, 128)
	for n := range 128 {
		t[n] = pitchClasses[n%12] + strconv.Itoa(n/12-1)
	}
	return t
}

// ParseNoteTable reads "<midi> <name>" lines. Blank lines and lines starting
// with '#' are ignored; other malformed lines are skipped and counted.
func ParseNoteTable(r io.Reader) (NoteTable, int, error) {
	t := make(NoteTable)
	skipped := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			skipped++
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			skipped++
			continue
		}
		t[n] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read note table: %w", err)
	}
	return t, skipped, nil
}

// LoadNoteTable loads a note table from path. It never fails: an empty path,
// a missing or unreadable file, or a file with no usable lines falls back to
// DefaultNoteTable, with a warning where something was wrong.
func LoadNoteTable(path string) NoteTable {
	if path == "" {
		return DefaultNoteTable()
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			applog.Warnf("Analysis: note table %s not found, using built-in names", path)
		} else {
			applog.Warnf("Analysis: cannot open note table %s: %v, using built-in names", path, err)
		}
		return DefaultNoteTable()
	}
	defer f.Close()

	t, skipped, err := ParseNoteTable(f)
	if err != nil {
		applog.Warnf("Analysis: %v, using built-in names", err)
		return DefaultNoteTable()
	}
	if skipped > 0 {
		applog.Warnf("Analysis: skipped %d malformed lines in note table %s", skipped, path)
	}
	if len(t) == 0 {
		applog.Warnf("Analysis: note table %s has no entries, using built-in names", path)
		return DefaultNoteTable()
	}
	applog.Infof("Analysis: loaded %d note names from %s", len(t), path)
	return t
}
