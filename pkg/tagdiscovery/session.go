package tagdiscovery

import (
	"context"
	"log"
	"time"

	"github.com/function61/gokit/logex"
	"github.com/libp2p/zeroconf/v2"
)

// receives endpoint events from a Session. calls come from the session's goroutine.
type Listener interface {
	EndpointAdded(id string, addr string)
	EndpointRemoved(id string)
}

// sends found service entries to the channel until ctx is done
type BrowseFunc func(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error

func browseZeroconf(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	return zeroconf.Browse(ctx, ServiceType, Domain, entries)
}

// Follows TagFS nodes on the network and turns sightings into added/removed events.
//
// Precondition: only one Session per process. mDNS browsing binds the shared multicast
// port, and two sessions would race each other's listeners. The hosting process constructs
// the session, runs it and owns its lifetime.
type Session struct {
	Browse           BrowseFunc
	RoundDuration    time.Duration
	StaleAfterRounds int // endpoint not seen in this many consecutive rounds is removed

	listener Listener
	known    map[string]*endpoint
	logl     *logex.Leveled
}

type endpoint struct {
	addr         string
	missedRounds int
}

func NewSession(listener Listener, logger *log.Logger) *Session {
	return &Session{
		Browse:           browseZeroconf,
		RoundDuration:    10 * time.Second,
		StaleAfterRounds: 3,

		listener: listener,
		known:    map[string]*endpoint{},
		logl:     logex.Levels(logex.NonNil(logger)),
	}
}

// browses in rounds until ctx is cancelled. must not be called concurrently.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.Round(ctx)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// one browse round. endpoints not seen in StaleAfterRounds consecutive rounds are removed.
func (s *Session) Round(ctx context.Context) {
	roundCtx, cancel := context.WithTimeout(ctx, s.RoundDuration)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	browseResult := make(chan error, 1)

	go func(result chan<- error) {
		result <- s.Browse(roundCtx, entries)
	}(browseResult)

	seen := map[string]bool{}

	// browse implementations may or may not close the channel, or return before roundCtx
	// ends. a nil channel drops out of the select.
	entriesRecv := entries
	roundDone := roundCtx.Done()

	for browseResult != nil || roundDone != nil {
		select {
		case entry, ok := <-entriesRecv:
			if !ok {
				entriesRecv = nil
				continue
			}

			if roundDone != nil {
				s.handleEntry(entry, seen)
			}
		case err := <-browseResult:
			browseResult = nil

			if err != nil && ctx.Err() == nil {
				s.logl.Error.Printf("browse: %v", err)
			}
		case <-roundDone:
			roundDone = nil // keep draining entries until browse returns
		}
	}

	if ctx.Err() != nil { // shutting down, not a sign of endpoints going away
		return
	}

	s.endRound(seen)
}

func (s *Session) handleEntry(entry *zeroconf.ServiceEntry, seen map[string]bool) {
	id := entry.Instance

	addr, err := AddrFromInstanceName(id)
	if err != nil {
		s.logl.Debug.Printf("ignoring: %v", err)
		return
	}

	if entry.TTL == 0 { // goodbye
		s.remove(id)
		return
	}

	seen[id] = true

	if existing, found := s.known[id]; found {
		existing.missedRounds = 0
		return
	}

	s.known[id] = &endpoint{addr: addr}

	s.logl.Info.Printf("endpoint added: %s", addr)

	s.listener.EndpointAdded(id, addr)
}

func (s *Session) endRound(seen map[string]bool) {
	for id, ep := range s.known {
		if seen[id] {
			continue
		}

		ep.missedRounds++

		if ep.missedRounds >= s.StaleAfterRounds {
			s.remove(id)
		}
	}
}

func (s *Session) remove(id string) {
	ep, found := s.known[id]
	if !found {
		return
	}

	delete(s.known, id)

	s.logl.Info.Printf("endpoint removed: %s", ep.addr)

	s.listener.EndpointRemoved(id)
}
