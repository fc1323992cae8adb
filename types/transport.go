// Package types defines core interfaces and common types used across the toolbridge library.
package types

import (
	"context"
)

// Transport defines the interface for communication between agent clients and
// the bridge. The wire framing itself (stdio, websocket, etc.) is owned by the
// transport implementation; the bridge core only produces and consumes
// protocol-level messages.
type Transport interface {
	// Send transmits a message over the transport.
	// It returns an error if the message could not be sent.
	Send(data []byte) error

	// Receive blocks until a message is received or an error occurs.
	// It returns the received message as a byte slice and any error that occurred.
	Receive() ([]byte, error)

	// ReceiveWithContext is like Receive but respects the provided context.
	// It allows for cancellation and timeouts when waiting for messages.
	ReceiveWithContext(ctx context.Context) ([]byte, error)

	// Close terminates the transport connection.
	// After Close is called, the transport should not be used.
	Close() error
}
