package tagfsserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/function61/gokit/assert"
	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/tagfstypes"
)

func TestRestAPI(t *testing.T) {
	node, dataDir := openTestNode(t)

	srv := httptest.NewServer(NewHTTPHandler(node, logex.Discard))
	defer srv.Close()

	resp := post(t, srv.URL+"/api/files/abcdef0001?name=photo.jpg&description=sunset+at+sea&tag=Holiday&tag=sea", "jpeg bytes")
	assert.Assert(t, resp.StatusCode == http.StatusNoContent)

	resp = get(t, srv.URL+"/api/files/abcdef0001/content")
	assert.Assert(t, resp.StatusCode == http.StatusOK)
	assert.EqualString(t, readBody(t, resp), "jpeg bytes")

	record := tagfstypes.FileRecord{}
	decodeJSON(t, get(t, srv.URL+"/api/files/abcdef0001"), &record)
	assert.EqualString(t, record.Name, "photo.jpg")
	assert.EqualString(t, strings.Join(record.Tags, ","), "holiday,sea")

	status := tagfstypes.NodeStatus{}
	decodeJSON(t, get(t, srv.URL+"/api/status"), &status)
	assert.Assert(t, status.Capacity == testCapacity)
	assert.Assert(t, status.FreeSpace == testCapacity-10)

	hashes := []string{}
	decodeJSON(t, get(t, srv.URL+"/api/list?tag=HOLIDAY"), &hashes)
	assert.EqualString(t, strings.Join(hashes, ","), "abcdef0001")

	decodeJSON(t, get(t, srv.URL+"/api/search?q=sunset"), &hashes)
	assert.EqualString(t, strings.Join(hashes, ","), "abcdef0001")

	// not found
	resp = get(t, srv.URL+"/api/files/abcdef0002/content")
	assert.Assert(t, resp.StatusCode == http.StatusNotFound)
	resp = get(t, srv.URL+"/api/files/abcdef0002")
	assert.Assert(t, resp.StatusCode == http.StatusNotFound)

	// validation
	assert.Assert(t, get(t, srv.URL+"/api/list").StatusCode == http.StatusBadRequest)
	assert.Assert(t, post(t, srv.URL+"/api/files/abcdef0003?name=x&size=99", "abc").StatusCode == http.StatusBadRequest)
	assert.Assert(t, post(t, srv.URL+"/api/files/abcdef0003?name=x&size=notnumber", "abc").StatusCode == http.StatusBadRequest)
	assert.Assert(t, post(t, srv.URL+"/api/files/abcdef0003", "abc").StatusCode == http.StatusBadRequest)

	// data integrity is not masked as absence
	assert.Ok(t, os.Remove(filepath.Join(dataDir, "files", "a/b/c/d/ef0001")))

	resp = get(t, srv.URL+"/api/files/abcdef0001/content")
	assert.Assert(t, resp.StatusCode == http.StatusInternalServerError)
	assert.EqualString(t, resp.Header.Get("X-Tagfs-Error"), "data-integrity")

	report := tagfstypes.IntegrityReport{}
	decodeJSON(t, post(t, srv.URL+"/api/integrity", ""), &report)
	assert.Assert(t, report.Checked == 1)
	assert.EqualString(t, strings.Join(report.Dangling, ","), "abcdef0001")

	// remove, and remove again
	assert.Assert(t, post(t, srv.URL+"/api/files/abcdef0001/remove", "").StatusCode == http.StatusNoContent)
	assert.Assert(t, post(t, srv.URL+"/api/files/abcdef0001/remove", "").StatusCode == http.StatusNoContent)

	metrics := readBody(t, get(t, srv.URL+"/metrics"))
	assert.Assert(t, strings.Contains(metrics, `tagfs_operations_total{op="put",outcome="ok"} 1`))
	assert.Assert(t, strings.Contains(metrics, "tagfs_free_space_bytes 1e+06"))
	assert.Assert(t, strings.Contains(metrics, "tagfs_capacity_overcommitted 0"))
	assert.Assert(t, strings.Contains(metrics, "tagfs_writes_in_flight 0"))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	assert.Ok(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func post(t *testing.T, url string, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/octet-stream", strings.NewReader(body))
	assert.Ok(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	assert.Ok(t, err)

	return string(body)
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	assert.Assert(t, resp.StatusCode == http.StatusOK)
	assert.Ok(t, json.NewDecoder(resp.Body).Decode(out))
}
