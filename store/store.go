// Package store defines the downward boundary between the coordinator and
// a concrete chain-server transport (§6 downward, §7). The wire encoding,
// network I/O, and server-side ordering live below this boundary and are
// out of scope for the coordinator itself.
package store

import "github.com/deen17/fuzzylog/fuzzylog"

// StoreClient is the interface a concrete transport implements to be
// driven by a fuzzylog.Coordinator. It is exactly fuzzylog.Transport,
// named from the transport's side of the boundary so implementations in
// this package and its subpackages read naturally as "a store client"
// rather than "a fuzzylog internal".
type StoreClient interface {
	fuzzylog.Transport
}

// Sink is the half of the boundary a StoreClient pushes completions
// through. A coordinator's StoreEvents channel satisfies this directly.
type Sink interface {
	Report(fuzzylog.StoreEvent)
}

// SinkFunc adapts a plain channel send into a Sink.
type SinkFunc chan<- fuzzylog.StoreEvent

func (s SinkFunc) Report(ev fuzzylog.StoreEvent) { s <- ev }
