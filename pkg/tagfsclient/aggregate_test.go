package tagfsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/function61/gokit/assert"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/tagfsserver"
	"github.com/function61/tagfs/pkg/tagfstypes"
)

func TestNodeClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	server, dataDir := startTestNode(t)

	node := NewNodeClient(server.URL)

	assert.Ok(t, node.Put(ctx, []byte("hello"), tagfstypes.FileRecord{
		Hash:        "abcdef0001",
		Name:        "hello.txt",
		Description: "a friendly greeting",
		Tags:        []string{"Greetings", "text"},
	}))

	content, err := node.Get(ctx, "abcdef0001")
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "hello")

	record, err := node.Info(ctx, "abcdef0001")
	assert.Ok(t, err)
	assert.EqualString(t, fmt.Sprint(record.Tags), "[greetings text]")
	assert.Assert(t, record.Size == 5)

	status, err := node.Status(ctx)
	assert.Ok(t, err)
	assert.Assert(t, status.FreeSpace == 1000-5)

	listed, err := node.List(ctx, []string{"GREETINGS"})
	assert.Ok(t, err)
	assert.EqualString(t, fmt.Sprint(listed), "[abcdef0001]")

	found, err := node.Search(ctx, "friendly")
	assert.Ok(t, err)
	assert.EqualString(t, fmt.Sprint(found), "[abcdef0001]")

	_, err = node.Get(ctx, "abcdef0002")
	assert.Assert(t, errors.Is(err, tagfstypes.ErrNotFound))

	_, err = node.Info(ctx, "abcdef0002")
	assert.Assert(t, errors.Is(err, tagfstypes.ErrNotFound))

	_, err = node.List(ctx, []string{})
	assert.Assert(t, errors.Is(err, errBadRequest))

	assert.Ok(t, os.Remove(filepath.Join(dataDir, "files", "a/b/c/d/ef0001")))

	_, err = node.Get(ctx, "abcdef0001")
	assert.Assert(t, errors.Is(err, tagfstypes.ErrDataIntegrity))

	report, err := node.VerifyIntegrity(ctx)
	assert.Ok(t, err)
	assert.EqualString(t, fmt.Sprint(report.Dangling), "[abcdef0001]")

	assert.Ok(t, node.Remove(ctx, "abcdef0001"))
	assert.Ok(t, node.Remove(ctx, "abcdef0001"))
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()

	serverA, _ := startTestNode(t)
	serverB, _ := startTestNode(t)

	client := New(logex.Discard)
	client.EndpointAdded("a", serverA.URL)
	client.EndpointAdded("b", serverB.URL)

	hashSunset, err := client.Put(ctx, "a", "sunset.jpg", "sunset by the sea", []string{"photo"}, []byte("sunset pixels"))
	assert.Ok(t, err)
	assert.EqualString(t, hashSunset, ContentHash([]byte("sunset pixels")))

	// same file on both nodes
	_, err = client.Put(ctx, "b", "sunset.jpg", "sunset by the sea", []string{"photo"}, []byte("sunset pixels"))
	assert.Ok(t, err)

	hashCat, err := client.Put(ctx, "b", "cat.jpg", "", []string{"photo", "cat"}, []byte("cat pixels"))
	assert.Ok(t, err)

	photos, err := client.ListAll(ctx, []string{"photo"})
	assert.Ok(t, err)
	assert.Assert(t, len(photos) == 2)
	assert.EqualString(t, describeMatches(photos, hashSunset, hashCat), "cat:[b] sunset:[a b]")

	sunsets, err := client.SearchAll(ctx, "sea")
	assert.Ok(t, err)
	assert.EqualString(t, describeMatches(sunsets, hashSunset, hashCat), "sunset:[a b]")

	content, err := client.Get(ctx, hashCat)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "cat pixels")

	// served from cache even after node is gone
	client.EndpointRemoved("b")
	content, err = client.Get(ctx, hashCat)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "cat pixels")

	_, err = client.Get(ctx, ContentHash([]byte("nobody has this")))
	assert.Assert(t, errors.Is(err, tagfstypes.ErrNotFound))

	assert.Ok(t, client.RemoveAll(ctx, hashSunset))
	_, err = client.Get(ctx, hashSunset)
	assert.Assert(t, errors.Is(err, tagfstypes.ErrNotFound))

	_, err = client.Put(ctx, "b", "x", "", nil, []byte("x"))
	assert.Assert(t, err != nil)
}

func TestGetVerifiesContentHash(t *testing.T) {
	ctx := context.Background()

	var requests atomic.Int32
	tampering := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("tampered"))
	}))
	defer tampering.Close()

	honest, _ := startTestNode(t)

	client := New(logex.Discard)
	client.EndpointAdded("a", tampering.URL)

	hash := ContentHash([]byte("original"))

	_, err := client.Get(ctx, hash)
	assert.Assert(t, errors.Is(err, tagfstypes.ErrDataIntegrity))

	// not cached, asks again
	_, err = client.Get(ctx, hash)
	assert.Assert(t, errors.Is(err, tagfstypes.ErrDataIntegrity))
	assert.Assert(t, requests.Load() == 2)

	client.EndpointAdded("b", honest.URL)
	_, err = client.Put(ctx, "b", "original.txt", "", nil, []byte("original"))
	assert.Ok(t, err)

	// falls through to the node with matching content
	content, err := client.Get(ctx, hash)
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "original")
	assert.Assert(t, requests.Load() == 3)

	// hashes of other forms can't be verified, so they're passed through uncached
	content, err = client.Get(ctx, "abcdef0001")
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "tampered")
	_, err = client.Get(ctx, "abcdef0001")
	assert.Ok(t, err)
	assert.Assert(t, requests.Load() == 5)
}

func TestAggregatesWithoutServers(t *testing.T) {
	client := New(logex.Discard)

	_, err := client.ListAll(context.Background(), []string{"x"})
	assert.Assert(t, errors.Is(err, ErrNoServers))

	_, err = client.Get(context.Background(), "abcdef0001")
	assert.Assert(t, errors.Is(err, ErrNoServers))
}

func startTestNode(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	dataDir := t.TempDir()

	node, err := tagfsserver.Open(context.Background(), tagfsserver.Config{
		DataDir:  dataDir,
		Capacity: 1000,
	}, logex.Discard)
	assert.Ok(t, err)

	server := httptest.NewServer(tagfsserver.NewHTTPHandler(node, logex.Discard))

	t.Cleanup(func() {
		server.Close()
		_ = node.Close()
	})

	return server, dataDir
}

func describeMatches(matches []Match, hashSunset string, hashCat string) string {
	names := map[string]string{hashSunset: "sunset", hashCat: "cat"}

	// matches are sorted by hash, so order by name for a stable description
	described := map[string]string{}
	for _, match := range matches {
		described[names[match.Hash]] = fmt.Sprintf("%s:%v", names[match.Hash], match.Nodes)
	}

	out := ""
	for _, name := range []string{"cat", "sunset"} {
		if d, found := described[name]; found {
			if out != "" {
				out += " "
			}
			out += d
		}
	}

	return out
}
