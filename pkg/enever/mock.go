package enever

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/jameshartig/enever/pkg/common"
)

// mockTransport answers feed requests with <dir>/<endpoint>.json so feeds
// can be tested manually without spending the request quota.
type mockTransport struct {
	dir string
}

func newMockTransport(dir string) *mockTransport {
	return &mockTransport{dir: dir}
}

// useMockDir switches c to answer from dir instead of the api.
func (c *Client) useMockDir(dir string) {
	c.client = common.HTTPClientWithTransport(newMockTransport(dir), clientTimeout)
	c.mock = true
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	name := filepath.Join(t.dir, path.Base(req.URL.Path)+".json")
	body, err := os.ReadFile(name)
	status := http.StatusOK
	if os.IsNotExist(err) {
		status = http.StatusNotFound
		body = nil
	} else if err != nil {
		return nil, err
	}
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
