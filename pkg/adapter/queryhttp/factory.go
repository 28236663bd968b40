package queryhttp

import (
	"context"
	"net"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/node"
	"github.com/marmos91/dittoquery/pkg/query"
)

// ConnectionHandler serves a single accepted connection.
//
// ServeConn owns conn until it returns and should return once the connection
// is finished. When HandlerParams.Draining is closed the handler should
// finish the request in progress and then end the connection instead of
// keeping it alive. ctx is cancelled when the server gives up waiting for
// in-flight work; handlers must then stop promptly. A nil return means the
// connection ended normally; any error is logged by the server and then
// discarded.
type ConnectionHandler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// ConnectionHandlerFunc adapts a function to the ConnectionHandler interface.
type ConnectionHandlerFunc func(ctx context.Context, conn net.Conn) error

func (f ConnectionHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// HandlerParams is everything a handler is built from.
//
// Runner is shared by every handler of a server. Logger is a private clone
// of the server's logger, so it carries the same component tag and sink.
// Draining is closed once the server starts draining; nil never fires.
type HandlerParams struct {
	Logger        *logger.Logger
	Runner        query.Runner
	SecondaryPort uint16
	NodeID        node.ID
	Draining      <-chan struct{}
}

// HandlerFactory builds the handler for one connection. It is called exactly
// once per accepted connection, from that connection's goroutine, and must
// not block.
type HandlerFactory func(params HandlerParams) ConnectionHandler

// NewServiceFactory returns a HandlerFactory producing a fresh Service for
// every connection.
func NewServiceFactory(cfg ServiceConfig) HandlerFactory {
	cfg.applyDefaults()
	return func(params HandlerParams) ConnectionHandler {
		return NewService(params, cfg)
	}
}
