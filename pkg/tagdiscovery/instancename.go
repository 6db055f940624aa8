package tagdiscovery

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"
)

const instancePrefix = "tagfs-"

// "192.168.1.5:8690" => "tagfs-MTkyLjE2OC4xLjU6ODY5MA". the address is recoverable from
// the name alone, so a client needs nothing else from the discovery notification.
func InstanceName(addr string) string {
	return instancePrefix + base64.RawURLEncoding.EncodeToString([]byte(addr))
}

func AddrFromInstanceName(name string) (string, error) {
	if !strings.HasPrefix(name, instancePrefix) {
		return "", fmt.Errorf("not a TagFS instance: %q", name)
	}

	addr, err := base64.RawURLEncoding.DecodeString(name[len(instancePrefix):])
	if err != nil {
		return "", fmt.Errorf("instance %q: %w", name, err)
	}

	if _, _, err := net.SplitHostPort(string(addr)); err != nil {
		return "", fmt.Errorf("instance %q: %w", name, err)
	}

	return string(addr), nil
}
