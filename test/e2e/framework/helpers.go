package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/marmos91/dittoquery/pkg/query"
)

// TestContext holds the context for a test run
type TestContext struct {
	T      *testing.T
	Node   *TestNode
	Client *http.Client
}

// NewTestContext starts a node on storeType and returns a context bound to
// it. The node is stopped when the test ends.
func NewTestContext(t *testing.T, storeType StoreType, entities map[string]string) *TestContext {
	t.Helper()

	tc := &TestContext{
		T:      t,
		Client: &http.Client{Timeout: 10 * time.Second},
	}

	t.Cleanup(func() {
		tc.Cleanup()
	})

	n := NewTestNode(t, TestNodeConfig{
		IndexStore: storeType,
		Entities:   entities,
	})
	tc.Node = n

	if err := n.Start(); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}

	return tc
}

// Cleanup closes idle client connections and stops the node
func (tc *TestContext) Cleanup() {
	if tc.Client != nil {
		tc.Client.CloseIdleConnections()
	}
	if tc.Node != nil {
		if err := tc.Node.Stop(); err != nil {
			tc.T.Logf("Warning: failed to stop node: %v", err)
		}
	}
}

// Query POSTs q to the node and decodes the result.
func (tc *TestContext) Query(q query.Query) (*http.Response, *query.Result) {
	tc.T.Helper()

	body, err := json.Marshal(q)
	if err != nil {
		tc.T.Fatalf("Failed to encode query: %v", err)
	}

	resp, err := tc.Client.Post(tc.Node.URL()+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		tc.T.Fatalf("Query request failed: %v", err)
	}
	defer resp.Body.Close()

	var result query.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		tc.T.Fatalf("Failed to decode query result: %v", err)
	}
	return resp, &result
}

// Get issues a GET against path on the node
func (tc *TestContext) Get(path string) *http.Response {
	tc.T.Helper()

	resp, err := tc.Client.Get(fmt.Sprintf("%s%s", tc.Node.URL(), path))
	if err != nil {
		tc.T.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}
