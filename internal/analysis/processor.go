// SPDX-License-Identifier: MIT
package analysis

// SpectrumProvider gives consumers outside the audio goroutine access to the
// latest analysis result. Implementations must be safe for concurrent use.
type SpectrumProvider interface {
	// LatestInto copies the newest spectrum into dst, which must hold Width()
	// values, and returns the peak that went with it.
	LatestInto(dst []float64) (PeakInfo, error)
	// Latest returns a copy of the newest result.
	Latest() Snapshot
	// Width returns the current spectrum length.
	Width() int
}

// Compile-time checks for interface implementations.
var _ SpectrumProvider = (*Monitor)(nil)
