// Package netinfo finds the address other machines on the LAN can use to
// reach this host.
package netinfo

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jackpal/gateway"
)

var errNoAddress = errors.New("no LAN IPv4 address found")

// Addr is one candidate local address.
type Addr struct {
	IP  net.IP
	Net *net.IPNet
}

// LocalIP returns the IPv4 address of the interface facing the default
// gateway. Without a discoverable gateway it falls back to the first
// non-loopback IPv4 address, then to 127.0.0.1.
func LocalIP() net.IP {
	addrs, err := interfaceAddrs()
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	// a nil gateway just means no subnet is preferred
	gw, _ := gateway.DiscoverGateway()
	ip, err := pick(addrs, gw)
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	return ip
}

// URL formats an http URL for ip and the port of listenAddr.
func URL(ip net.IP, listenAddr string) string {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		port = "80"
	}
	return "http://" + net.JoinHostPort(ip.String(), port) + "/"
}

// LocalURL is the loopback URL for listenAddr.
func LocalURL(listenAddr string) string {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://localhost/"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "http://localhost/"
	}
	return "http://localhost:" + port + "/"
}

// pick prefers the address whose subnet contains gw.
func pick(addrs []Addr, gw net.IP) (net.IP, error) {
	var first net.IP
	for _, a := range addrs {
		ip4 := a.IP.To4()
		if ip4 == nil || ip4.IsLoopback() || !ip4.IsGlobalUnicast() {
			continue
		}
		if gw != nil && a.Net != nil && a.Net.Contains(gw) {
			return ip4, nil
		}
		if first == nil {
			first = ip4
		}
	}
	if first == nil {
		return nil, errNoAddress
	}
	return first, nil
}

func interfaceAddrs() ([]Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var out []Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				out = append(out, Addr{IP: ipnet.IP, Net: ipnet})
			}
		}
	}
	return out, nil
}
