package e2e

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoquery/pkg/query"
	"github.com/marmos91/dittoquery/test/e2e/framework"
)

// TestQuery_ResolvesEntities runs a multi-selection query
func TestQuery_ResolvesEntities(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *framework.TestContext) {
		resp, result := tc.Query(query.Query{
			Document:  "query pools { grt: token_grt pool: $pool }",
			Variables: map[string]any{"pool": "pool_1"},
		})

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Node-Id") != tc.Node.NodeID() {
			t.Errorf("Expected node id header %q, got %q", tc.Node.NodeID(), resp.Header.Get("X-Node-Id"))
		}

		grt, ok := result.Data["grt"].(map[string]any)
		if !ok || grt["symbol"] != "GRT" {
			t.Errorf("Unexpected grt value: %v", result.Data["grt"])
		}
		pool, ok := result.Data["pool"].(map[string]any)
		if !ok || pool["token1"] != "token_eth" {
			t.Errorf("Unexpected pool value: %v", result.Data["pool"])
		}
		if len(result.Errors) != 0 {
			t.Errorf("Expected no errors, got %v", result.Errors)
		}
	})
}

// TestQuery_PartialFailures reports missing and malformed entities per selection
func TestQuery_PartialFailures(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *framework.TestContext) {
		_, result := tc.Query(query.Query{Document: "{ token_eth missing broken_doc }"})

		if result.Data["token_eth"] == nil {
			t.Error("Expected token_eth to resolve")
		}
		if len(result.Errors) != 2 {
			t.Fatalf("Expected 2 errors, got %v", result.Errors)
		}

		messages := map[string]string{}
		for _, e := range result.Errors {
			messages[strings.Join(e.Path, ".")] = e.Message
		}
		if messages["missing"] != "entity not found" {
			t.Errorf("Unexpected error for missing: %q", messages["missing"])
		}
		if messages["broken_doc"] != "entity is not valid JSON" {
			t.Errorf("Unexpected error for broken_doc: %q", messages["broken_doc"])
		}
	})
}

// TestIndex_AdvertisesSubscriptions checks the node index document
func TestIndex_AdvertisesSubscriptions(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *framework.TestContext) {
		resp := tc.Get("/")
		defer resp.Body.Close()

		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode index: %v", err)
		}

		want := fmt.Sprintf("ws://127.0.0.1:%d/", tc.Node.SubscriptionPort())
		if body["subscriptions"] != want {
			t.Errorf("Expected subscriptions %q, got %q", want, body["subscriptions"])
		}
		if body["node_id"] != tc.Node.NodeID() {
			t.Errorf("Expected node id %q, got %q", tc.Node.NodeID(), body["node_id"])
		}
	})
}

// TestQuery_ConcurrentClients issues queries from many connections at once
func TestQuery_ConcurrentClients(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *framework.TestContext) {
		const clients = 32

		var wg sync.WaitGroup
		errs := make(chan error, clients)

		for i := 0; i < clients; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				// A dedicated transport forces a dedicated connection
				client := &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{}}
				defer client.CloseIdleConnections()

				body := strings.NewReader(`{"query":"{ token_grt }"}`)
				resp, err := client.Post(tc.Node.URL()+"/query", "application/json", body)
				if err != nil {
					errs <- fmt.Errorf("client %d: %w", i, err)
					return
				}
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					errs <- fmt.Errorf("client %d: status %d", i, resp.StatusCode)
				}
			}(i)
		}

		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})
}

// TestConnection_MalformedRequestIsIsolated checks that a broken client
// neither stops the node nor affects other connections
func TestConnection_MalformedRequestIsIsolated(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *framework.TestContext) {
		bad, err := net.DialTimeout("tcp4", fmt.Sprintf("127.0.0.1:%d", tc.Node.Port()), 2*time.Second)
		if err != nil {
			t.Fatalf("Failed to dial: %v", err)
		}
		defer bad.Close()

		if _, err := io.WriteString(bad, "THIS IS NOT HTTP\r\n\r\n"); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
		resp, err := http.ReadResponse(bufio.NewReader(bad), nil)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400 for malformed request, got %d", resp.StatusCode)
			}
		}

		health := tc.Get("/health")
		health.Body.Close()
		if health.StatusCode != http.StatusOK {
			t.Fatalf("Expected node to keep serving, got %d", health.StatusCode)
		}
	})
}

// TestNode_StopsCleanly checks that an idle node shuts down within its budget
func TestNode_StopsCleanly(t *testing.T) {
	n := framework.NewTestNode(t, framework.TestNodeConfig{Entities: seedEntities})
	if err := n.Start(); err != nil {
		t.Fatalf("Failed to start node: %v", err)
	}

	start := time.Now()
	if err := n.Stop(); err != nil {
		t.Fatalf("Failed to stop node: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop took %v", elapsed)
	}

	if _, err := net.DialTimeout("tcp4", fmt.Sprintf("127.0.0.1:%d", n.Port()), 500*time.Millisecond); err == nil {
		t.Error("Expected port to be released after stop")
	}
}
