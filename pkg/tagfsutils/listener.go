// Networking helpers shared by TagFS server and client
package tagfsutils

import (
	"errors"
	"net"
	"os"
	"strings"

	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
)

const domainSocketScheme = "domainsocket://"

// "domainsocket:///run/tagfs.sock" listens on a unix socket, anything else is a TCP address
func CreateTCPOrDomainSocketListener(addr string, logl *logex.Leveled) (net.Listener, error) {
	if socketPath := ParseDomainSocketPath(addr); socketPath != "" {
		return createDomainSocketListener(socketPath, logl)
	}

	return net.Listen("tcp", addr)
}

func ParseDomainSocketPath(addr string) string {
	if !strings.HasPrefix(addr, domainSocketScheme) {
		return ""
	}

	return addr[len(domainSocketScheme):]
}

func createDomainSocketListener(socketPath string, logl *logex.Leveled) (net.Listener, error) {
	exists, err := fileexists.Exists(socketPath)
	if err != nil {
		return nil, err
	}

	if exists { // leftover from unclean shutdown
		logl.Info.Printf("removing previous socket %s", socketPath)

		if err := os.Remove(socketPath); err != nil {
			return nil, err
		}
	}

	return net.Listen("unix", socketPath)
}

// address other hosts can reach us at: "<first non-loopback IPv4>:<port of listenAddr>"
func AdvertiseAddr(listenAddr string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", err
	}

	if host != "" && !net.ParseIP(host).IsUnspecified() {
		return net.JoinHostPort(host, port), nil
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	ip := firstRoutableIPv4(addrs)
	if ip == nil {
		return "", errors.New("no non-loopback IPv4 address to advertise")
	}

	return net.JoinHostPort(ip.String(), port), nil
}

func firstRoutableIPv4(addrs []net.Addr) net.IP {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsLinkLocalUnicast() {
			return ip4
		}
	}

	return nil
}
