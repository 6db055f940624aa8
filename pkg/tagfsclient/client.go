package tagfsclient

import (
	"log"
	"sort"
	"sync"

	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/tagdiscovery"
)

// Knows the currently discovered nodes. Discovery events are the only mutators of the
// endpoint map, and every access to it goes through one lock.
type Client struct {
	servers   map[string]*NodeClient // discovery id => handle
	serversMu sync.Mutex
	content   *contentCache
	logl      *logex.Leveled
}

var _ tagdiscovery.Listener = (*Client)(nil)

func New(logger *log.Logger) *Client {
	return &Client{
		servers: map[string]*NodeClient{},
		content: newContentCache(contentCacheEntries),
		logl:    logex.Levels(logex.NonNil(logger)),
	}
}

func (c *Client) EndpointAdded(id string, addr string) {
	c.serversMu.Lock()
	defer c.serversMu.Unlock()

	c.servers[id] = NewNodeClient(addr)
}

func (c *Client) EndpointRemoved(id string) {
	c.serversMu.Lock()
	defer c.serversMu.Unlock()

	delete(c.servers, id)
}

// snapshot of known endpoints
func (c *Client) Servers() map[string]*NodeClient {
	c.serversMu.Lock()
	defer c.serversMu.Unlock()

	snapshot := make(map[string]*NodeClient, len(c.servers))
	for id, server := range c.servers {
		snapshot[id] = server
	}

	return snapshot
}

func (c *Client) Server(id string) (*NodeClient, bool) {
	c.serversMu.Lock()
	defer c.serversMu.Unlock()

	server, found := c.servers[id]
	return server, found
}

type node struct {
	id     string
	client *NodeClient
}

// stable order so aggregate results and Get() preference are deterministic
func (c *Client) sortedServers() []node {
	nodes := []node{}
	for id, client := range c.Servers() {
		nodes = append(nodes, node{id, client})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].id < nodes[j].id })

	return nodes
}
