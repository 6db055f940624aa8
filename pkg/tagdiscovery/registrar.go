// Advertises TagFS nodes on the local network (mDNS / DNS-SD) and follows their comings and goings
package tagdiscovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/logex"
	"github.com/libp2p/zeroconf/v2"
)

const (
	ServiceType = "_tagfs._tcp"
	Domain      = "local."
)

type Registration struct {
	server *zeroconf.Server
}

// announces a node reachable at advertiseAddr ("host:port")
func Register(advertiseAddr string, logger *log.Logger) (*Registration, error) {
	_, portSerialized, err := net.SplitHostPort(advertiseAddr)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(portSerialized)
	if err != nil {
		return nil, fmt.Errorf("advertise port: %w", err)
	}

	instance := InstanceName(advertiseAddr)

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		port,
		[]string{"addr=" + advertiseAddr, "version=" + dynversion.Version},
		nil)
	if err != nil {
		return nil, fmt.Errorf("mDNS register: %w", err)
	}

	logex.Levels(logex.NonNil(logger)).Info.Printf("advertising %s as %s", advertiseAddr, instance)

	return &Registration{server}, nil
}

// sends goodbye packets, so browsers see us leave immediately
func (r *Registration) Shutdown() {
	r.server.Shutdown()
}

// keeps the registration alive until ctx is cancelled. for use with taskrunner.
func RegistrationTask(advertiseAddr string, logger *log.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		registration, err := Register(advertiseAddr, logger)
		if err != nil {
			return err
		}
		defer registration.Shutdown()

		<-ctx.Done()

		return nil
	}
}
