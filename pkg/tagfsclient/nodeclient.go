// Client for TagFS storage nodes
package tagfsclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/function61/gokit/ezhttp"
	"github.com/function61/tagfs/pkg/tagfstypes"
)

// typed client for one node's HTTP API
type NodeClient struct {
	baseURL    string
	httpClient *http.Client
}

// addr is "host:port" (as discovered) or a full base URL
func NewNodeClient(addr string) *NodeClient {
	baseURL := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		baseURL = "http://" + addr
	}

	return &NodeClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

func (n *NodeClient) BaseURL() string {
	return n.baseURL
}

func (n *NodeClient) Status(ctx context.Context) (*tagfstypes.NodeStatus, error) {
	status := &tagfstypes.NodeStatus{}
	if _, err := ezhttp.Get(
		ctx,
		n.baseURL+"/api/status",
		ezhttp.RespondsJson(status, false),
		ezhttp.Client(n.httpClient),
	); err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}

	return status, nil
}

// tagfstypes.ErrNotFound if node doesn't have the file
func (n *NodeClient) Get(ctx context.Context, hash string) ([]byte, error) {
	resp, err := ezhttp.Get(
		ctx,
		n.fileURL(hash)+"/content",
		ezhttp.Client(n.httpClient))
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("Get(%s): %w", hash, translateError(resp, err))
	}

	return io.ReadAll(resp.Body)
}

// tagfstypes.ErrNotFound if node doesn't have the file
func (n *NodeClient) Info(ctx context.Context, hash string) (*tagfstypes.FileRecord, error) {
	record := &tagfstypes.FileRecord{}
	resp, err := ezhttp.Get(
		ctx,
		n.fileURL(hash),
		ezhttp.RespondsJson(record, false),
		ezhttp.Client(n.httpClient))
	if err != nil {
		return nil, fmt.Errorf("Info(%s): %w", hash, translateError(resp, err))
	}

	return record, nil
}

func (n *NodeClient) Put(ctx context.Context, content []byte, record tagfstypes.FileRecord) error {
	query := url.Values{}
	query.Set("name", record.Name)
	if record.Description != "" {
		query.Set("description", record.Description)
	}
	for _, tag := range record.Tags {
		query.Add("tag", tag)
	}
	if record.Size != 0 {
		query.Set("size", strconv.FormatInt(record.Size, 10))
	}

	resp, err := ezhttp.Post(
		ctx,
		n.fileURL(record.Hash)+"?"+query.Encode(),
		ezhttp.SendBody(bytes.NewReader(content), "application/octet-stream"),
		ezhttp.Client(n.httpClient))
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("Put(%s): %w", record.Hash, translateError(resp, err))
	}

	return nil
}

// succeeds also if node doesn't have the file
func (n *NodeClient) Remove(ctx context.Context, hash string) error {
	resp, err := ezhttp.Post(
		ctx,
		n.fileURL(hash)+"/remove",
		ezhttp.Client(n.httpClient))
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("Remove(%s): %w", hash, translateError(resp, err))
	}

	return nil
}

func (n *NodeClient) List(ctx context.Context, tags []string) ([]string, error) {
	query := url.Values{}
	for _, tag := range tags {
		query.Add("tag", tag)
	}

	hashes := []string{}
	resp, err := ezhttp.Get(
		ctx,
		n.baseURL+"/api/list?"+query.Encode(),
		ezhttp.RespondsJson(&hashes, false),
		ezhttp.Client(n.httpClient))
	if err != nil {
		return nil, fmt.Errorf("List: %w", translateError(resp, err))
	}

	return hashes, nil
}

func (n *NodeClient) Search(ctx context.Context, text string) ([]string, error) {
	hashes := []string{}
	resp, err := ezhttp.Get(
		ctx,
		n.baseURL+"/api/search?"+url.Values{"q": {text}}.Encode(),
		ezhttp.RespondsJson(&hashes, false),
		ezhttp.Client(n.httpClient))
	if err != nil {
		return nil, fmt.Errorf("Search: %w", translateError(resp, err))
	}

	return hashes, nil
}

func (n *NodeClient) VerifyIntegrity(ctx context.Context) (*tagfstypes.IntegrityReport, error) {
	report := &tagfstypes.IntegrityReport{}
	resp, err := ezhttp.Post(
		ctx,
		n.baseURL+"/api/integrity",
		ezhttp.RespondsJson(report, false),
		ezhttp.Client(n.httpClient))
	if err != nil {
		return nil, fmt.Errorf("VerifyIntegrity: %w", translateError(resp, err))
	}

	return report, nil
}

func (n *NodeClient) fileURL(hash string) string {
	return n.baseURL + "/api/files/" + url.PathEscape(hash)
}

var errBadRequest = errors.New("bad request")

// maps response status back to the node's sentinel errors, so errors.Is() works on both
// sides of the wire
func translateError(resp *http.Response, err error) error {
	if resp == nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return tagfstypes.ErrNotFound
	case resp.Header.Get(tagfstypes.ErrorKindHeader) == tagfstypes.ErrorKindDataIntegrity:
		return fmt.Errorf("%w: %v", tagfstypes.ErrDataIntegrity, err)
	case resp.Header.Get(tagfstypes.ErrorKindHeader) == tagfstypes.ErrorKindTerminated:
		return tagfstypes.ErrNodeTerminated
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %v", errBadRequest, err)
	default:
		return err
	}
}
