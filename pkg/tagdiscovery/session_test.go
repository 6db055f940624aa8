package tagdiscovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/function61/gokit/assert"
	"github.com/function61/gokit/logex"
	"github.com/libp2p/zeroconf/v2"
)

func TestSessionLifecycle(t *testing.T) {
	events := &recordingListener{}

	session := NewSession(events, logex.Discard)
	session.RoundDuration = 10 * time.Millisecond
	session.StaleAfterRounds = 2

	nodeA := InstanceName("10.0.0.1:8690")
	nodeB := InstanceName("10.0.0.2:8690")

	round := func(entries ...*zeroconf.ServiceEntry) {
		session.Browse = fakeBrowse(nil, entries...)
		session.Round(context.Background())
	}

	round(entry(nodeA, 120), entry(nodeB, 120), entry(nodeA, 120))
	assert.EqualString(t, events.String(), "+10.0.0.1:8690 +10.0.0.2:8690")

	// goodbye from A
	round(entry(nodeA, 0), entry(nodeB, 120))
	assert.EqualString(t, events.String(), "+10.0.0.1:8690 +10.0.0.2:8690 -"+nodeA)

	// B goes silent and becomes stale after two rounds
	round()
	assert.EqualString(t, events.String(), "+10.0.0.1:8690 +10.0.0.2:8690 -"+nodeA)
	round()
	assert.EqualString(t, events.String(), "+10.0.0.1:8690 +10.0.0.2:8690 -"+nodeA+" -"+nodeB)

	// A comes back
	round(entry(nodeA, 120))
	assert.EqualString(t, events.String(), "+10.0.0.1:8690 +10.0.0.2:8690 -"+nodeA+" -"+nodeB+" +10.0.0.1:8690")
}

func TestSessionIgnoresForeignInstances(t *testing.T) {
	events := &recordingListener{}

	session := NewSession(events, logex.Discard)
	session.RoundDuration = 10 * time.Millisecond
	session.Browse = fakeBrowse(nil, entry("Living room printer", 120))

	session.Round(context.Background())

	assert.EqualString(t, events.String(), "")
}

func TestSessionSurvivesBrowseError(t *testing.T) {
	events := &recordingListener{}

	session := NewSession(events, logex.Discard)
	session.RoundDuration = 10 * time.Millisecond
	session.Browse = fakeBrowse(errors.New("no multicast interface"), entry(InstanceName("10.0.0.1:8690"), 120))

	session.Round(context.Background())

	assert.EqualString(t, events.String(), "+10.0.0.1:8690")
}

func TestSessionRunStopsOnCancel(t *testing.T) {
	session := NewSession(&recordingListener{}, logex.Discard)
	session.RoundDuration = 10 * time.Millisecond
	session.Browse = func(ctx context.Context, _ chan<- *zeroconf.ServiceEntry) error {
		<-ctx.Done()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	assert.Ok(t, session.Run(ctx))
}

// sends entries and returns, like a browser that doesn't block until ctx is done
func fakeBrowse(result error, entries ...*zeroconf.ServiceEntry) BrowseFunc {
	return func(ctx context.Context, ch chan<- *zeroconf.ServiceEntry) error {
		for _, e := range entries {
			select {
			case ch <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return result
	}
}

func entry(instance string, ttl uint32) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, Domain)
	e.TTL = ttl
	return e
}

type recordingListener struct {
	events []string
}

func (r *recordingListener) EndpointAdded(id string, addr string) {
	r.events = append(r.events, "+"+addr)
}

func (r *recordingListener) EndpointRemoved(id string) {
	r.events = append(r.events, "-"+id)
}

func (r *recordingListener) String() string {
	return strings.Join(r.events, " ")
}
