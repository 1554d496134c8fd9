package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/athravseruwam07/clarus/core/lms"
)

// fakeClient scripts the LMS connector for tests; handlers receive the
// API-rooted path.
type fakeClient struct {
	host  string
	probe func(path string) (json.RawMessage, error)
	list  func(path string) (lms.Page, error)

	mu         sync.Mutex
	probeCalls []string
	listCalls  []string
}

var _ lms.Client = (*fakeClient)(nil)

func (c *fakeClient) Host() string {
	if c.host == "" {
		return "school.example.com"
	}
	return c.host
}

func (c *fakeClient) ListPage(_ context.Context, path string) (lms.Page, error) {
	c.mu.Lock()
	c.listCalls = append(c.listCalls, path)
	c.mu.Unlock()
	if c.list == nil {
		return lms.Page{}, apiErr(http.StatusNotFound)
	}
	return c.list(path)
}

func (c *fakeClient) Probe(_ context.Context, path string) (json.RawMessage, error) {
	c.mu.Lock()
	c.probeCalls = append(c.probeCalls, path)
	c.mu.Unlock()
	if c.probe == nil {
		return nil, apiErr(http.StatusNotFound)
	}
	return c.probe(path)
}

func apiErr(status int) *lms.APIError {
	code := lms.CodeRequestFailed
	switch {
	case status == http.StatusUnauthorized:
		code = lms.CodeSessionExpired
	case status == http.StatusForbidden:
		code = lms.CodeForbidden
	case status == http.StatusNotFound:
		code = lms.CodeNotFound
	case status >= 500:
		code = lms.CodeServiceUnavailable
	}
	return &lms.APIError{Status: status, Code: code}
}

func strPtr(s string) *string { return &s }
