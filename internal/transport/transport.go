// SPDX-License-Identifier: MIT
/*
Package transport publishes engine state snapshots to external
observers. A Broadcaster samples the published state at a fixed interval
and fans it out to any number of Transports (WebSocket JSON, UDP binary).
Implementations must be safe for concurrent use.
*/
package transport

// Transport sends one state snapshot to an external observer.
type Transport interface {
	Send(data any) error
	Close() error
}
