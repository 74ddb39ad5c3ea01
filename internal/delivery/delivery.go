// Package delivery defines the contract shared by every inbound transport.
package delivery

import "context"

// Delivery is a long-running server started by the binaries after the fx graph is built.
type Delivery interface {
	Serve(ctx context.Context) error
}
