package config

import (
	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/adapter"
	"github.com/marmos91/dittoquery/pkg/adapter/queryhttp"
	"github.com/marmos91/dittoquery/pkg/metrics"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Every adapter shares the node's runner and identity. cfg must have been
// validated; an invalid adapter section panics.
//
// Parameters:
//   - cfg: The complete DittoQuery configuration
//   - factory: Logging factory adapters build their component loggers from
//   - runner: Query backend shared by every adapter
//   - queryMetrics: Optional query metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: Enabled adapters ready to be added to the node server
func CreateAdapters(cfg *Config, factory *logger.Factory, runner query.Runner, queryMetrics metrics.QueryMetrics) []adapter.Adapter {
	var adapters []adapter.Adapter

	if cfg.Adapters.Query.Enabled {
		adapters = append(adapters, queryhttp.NewAdapter(
			cfg.Adapters.Query,
			factory,
			runner,
			node.ID(cfg.Node.ID),
			queryMetrics,
		))
	}

	return adapters
}
