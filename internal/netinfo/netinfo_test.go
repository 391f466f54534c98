package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, cidr string) Addr {
	t.Helper()
	ip, n, err := net.ParseCIDR(cidr)
	require.NoError(t, err)
	return Addr{IP: ip, Net: n}
}

func TestPick(t *testing.T) {
	t.Parallel()

	addrs := []Addr{
		addr(t, "127.0.0.1/8"),
		addr(t, "fe80::1/64"),
		addr(t, "10.8.0.2/24"),
		addr(t, "192.168.1.23/24"),
	}

	ip, err := pick(addrs, net.ParseIP("192.168.1.1"))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.23", ip.String())

	ip, err = pick(addrs, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.2", ip.String(), "first usable address without a gateway")

	_, err = pick([]Addr{addr(t, "127.0.0.1/8")}, nil)
	assert.ErrorIs(t, err, errNoAddress)
}

func TestURL(t *testing.T) {
	t.Parallel()

	ip := net.ParseIP("192.168.1.23")
	assert.Equal(t, "http://192.168.1.23:8303/", URL(ip, "0.0.0.0:8303"))
	assert.Equal(t, "http://192.168.1.23:80/", URL(ip, "bogus"))
	assert.Equal(t, "http://localhost:8303/", LocalURL(":8303"))
	assert.Equal(t, "http://localhost/", LocalURL("bogus"))
}

func TestLocalIP_NeverNil(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, LocalIP().To4())
}
