//go:build !device

package locus

// Probe reports the execution locus this binary was compiled for.
func Probe() Locus {
	return Host
}
