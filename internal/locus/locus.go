// Package locus identifies which execution locus the calling code was
// compiled for: the host side driving setup and assertions, or the device
// side executing graph nodes in parallel.
//
// The locus is fixed at compile time via the "device" build tag, mirroring
// how device toolchains split host and device code paths. Runtime inspection
// is deliberately not used: code compiled for one locus always reports that
// locus, regardless of which goroutine calls it.
package locus

// Locus tags an execution domain.
type Locus int

const (
	// Host is the test-driver domain: a single goroutine issuing setup,
	// launches, and assertions.
	Host Locus = iota
	// Device is the parallel signal domain: worker goroutines executing
	// graph node operations.
	Device
)

// String returns "host" or "device".
func (l Locus) String() string {
	if l == Device {
		return "device"
	}
	return "host"
}

// IsDevice reports whether this code path was compiled for the device locus.
func IsDevice() bool {
	return Probe() == Device
}
