// Package gateway - errors.go defines the request error taxonomy.
package gateway

import "errors"

var (
	// ErrInvalidClientRequest covers wrong content type, unparseable JSON
	// and a missing or false stream flag. Surfaced as HTTP 504.
	ErrInvalidClientRequest = errors.New("invalid client request")

	// ErrUpstreamProtocol reports a frame without a parseable boolean done
	// field. The response closes and the session cancels.
	ErrUpstreamProtocol = errors.New("upstream protocol failure")

	// ErrUpstreamTransport reports a connection-level upstream failure.
	ErrUpstreamTransport = errors.New("upstream transport failure")

	// ErrDownstreamLost reports an unwritable client sink. Pending frames
	// are dropped.
	ErrDownstreamLost = errors.New("downstream sink lost")
)
