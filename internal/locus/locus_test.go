package locus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The test binary is built without the "device" tag, so the probe must
// resolve to the host locus.
func TestProbe_HostBuild(t *testing.T) {
	assert.Equal(t, Host, Probe())
	assert.False(t, IsDevice())
}

func TestProbe_Stateless(t *testing.T) {
	first := Probe()
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Probe())
	}
}

func TestLocus_String(t *testing.T) {
	assert.Equal(t, "host", Host.String())
	assert.Equal(t, "device", Device.String())
}
