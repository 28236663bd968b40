package e2e

import (
	"testing"

	"github.com/marmos91/dittoquery/test/e2e/framework"
)

// seedEntities is the index every e2e node starts with.
var seedEntities = map[string]string{
	"token_grt":  `{"symbol":"GRT","decimals":18}`,
	"token_eth":  `{"symbol":"ETH","decimals":18}`,
	"pool_1":     `{"token0":"token_grt","token1":"token_eth"}`,
	"broken_doc": `{not json`,
}

// runOnAllConfigs is a helper that runs a test on every index store
func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *framework.TestContext)) {
	t.Helper()

	for _, store := range framework.AllStoreTypes {
		t.Run(string(store), func(t *testing.T) {
			tc := framework.NewTestContext(t, store, seedEntities)
			testFunc(t, tc)
		})
	}
}
