package tagdiscovery

import (
	"testing"

	"github.com/function61/gokit/assert"
)

func TestInstanceName(t *testing.T) {
	name := InstanceName("192.168.1.5:8690")
	assert.EqualString(t, name, "tagfs-MTkyLjE2OC4xLjU6ODY5MA")

	addr, err := AddrFromInstanceName(name)
	assert.Ok(t, err)
	assert.EqualString(t, addr, "192.168.1.5:8690")

	ipv6, err := AddrFromInstanceName(InstanceName("[fe80::1]:8690"))
	assert.Ok(t, err)
	assert.EqualString(t, ipv6, "[fe80::1]:8690")
}

func TestAddrFromInstanceNameInvalid(t *testing.T) {
	for _, name := range []string{
		"",
		"printer",
		"tagfs-!!!",
		InstanceName("no port"),
	} {
		_, err := AddrFromInstanceName(name)
		assert.Assert(t, err != nil)
	}
}
