package tagfsclient

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/function61/tagfs/pkg/tagfstypes"
	"github.com/minio/sha256-simd"
)

var ErrNoServers = errors.New("no TagFS servers discovered")

// a hash and the nodes that have it
type Match struct {
	Hash  string
	Nodes []string // discovery ids
}

// union of List() across all nodes
func (c *Client) ListAll(ctx context.Context, tags []string) ([]Match, error) {
	return c.union(func(server *NodeClient) ([]string, error) {
		return server.List(ctx, tags)
	})
}

// union of Search() across all nodes
func (c *Client) SearchAll(ctx context.Context, text string) ([]Match, error) {
	return c.union(func(server *NodeClient) ([]string, error) {
		return server.Search(ctx, text)
	})
}

// content from the first node that has it. tagfstypes.ErrNotFound if no node has it.
// content not matching a sha256 hash is rejected as tagfstypes.ErrDataIntegrity.
func (c *Client) Get(ctx context.Context, hash string) ([]byte, error) {
	if content, found := c.content.Get(hash); found {
		return content, nil
	}

	nodes := c.sortedServers()
	if len(nodes) == 0 {
		return nil, ErrNoServers
	}

	var firstErr error

	for _, node := range nodes {
		content, err := node.client.Get(ctx, hash)
		if err != nil {
			if !errors.Is(err, tagfstypes.ErrNotFound) {
				c.logl.Error.Printf("node %s: %v", node.id, err)

				if firstErr == nil {
					firstErr = err
				}
			}

			continue
		}

		if isContentHash(hash) {
			if ContentHash(content) != hash {
				err := fmt.Errorf("%w: %s: content does not match its hash", tagfstypes.ErrDataIntegrity, hash)
				c.logl.Error.Printf("node %s: %v", node.id, err)

				if firstErr == nil {
					firstErr = err
				}

				continue
			}

			c.content.Add(hash, content)
		}

		return content, nil
	}

	if firstErr != nil { // some node may have it, but failed
		return nil, firstErr
	}

	return nil, tagfstypes.ErrNotFound
}

// stores on the given node, hashing the content (sha256, hex). returns the hash.
func (c *Client) Put(
	ctx context.Context,
	nodeID string,
	name string,
	description string,
	tags []string,
	content []byte,
) (string, error) {
	server, found := c.Server(nodeID)
	if !found {
		return "", fmt.Errorf("unknown node: %s", nodeID)
	}

	hash := ContentHash(content)

	if err := server.Put(ctx, content, tagfstypes.FileRecord{
		Hash:        hash,
		Name:        name,
		Description: description,
		Tags:        tags,
		Size:        int64(len(content)),
	}); err != nil {
		return "", err
	}

	return hash, nil
}

// removes from every node that has it
func (c *Client) RemoveAll(ctx context.Context, hash string) error {
	c.content.Remove(hash)

	nodes := c.sortedServers()
	if len(nodes) == 0 {
		return ErrNoServers
	}

	for _, node := range nodes {
		if err := node.client.Remove(ctx, hash); err != nil {
			return fmt.Errorf("node %s: %w", node.id, err)
		}
	}

	return nil
}

func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// whether hash has the form ContentHash() produces. only those can be verified (and cached).
func isContentHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}

	_, err := hex.DecodeString(hash)

	return err == nil && strings.ToLower(hash) == hash
}

// failing nodes are logged and skipped. error only if every node failed.
func (c *Client) union(query func(server *NodeClient) ([]string, error)) ([]Match, error) {
	nodes := c.sortedServers()
	if len(nodes) == 0 {
		return nil, ErrNoServers
	}

	byHash := map[string]*Match{}
	failures := 0
	var firstErr error

	for _, node := range nodes {
		hashes, err := query(node.client)
		if err != nil {
			c.logl.Error.Printf("node %s: %v", node.id, err)

			failures++
			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		for _, hash := range hashes {
			match, found := byHash[hash]
			if !found {
				match = &Match{Hash: hash}
				byHash[hash] = match
			}

			match.Nodes = append(match.Nodes, node.id)
		}
	}

	if failures == len(nodes) {
		return nil, firstErr
	}

	matches := make([]Match, 0, len(byHash))
	for _, match := range byHash {
		matches = append(matches, *match)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Hash < matches[j].Hash })

	return matches, nil
}
