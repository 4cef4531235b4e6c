// Package pktdelay implements the delay core of a Windows packet delay
// engine: it intercepts every IP packet entering or leaving the host
// through a kernel-assisted diversion handle, holds each packet for a
// configurable duration, and re-injects it in original order with
// minimum jitter.
//
// The package does not implement a GUI, input validation, or the
// diversion driver itself. It specifies the interface it expects from
// a diversion handle ([DiversionHandle]) and the events it publishes
// to any embedding UI ([Engine.OnStatus], [Engine.OnError]).
//
// Use [NewEngine] to create a controller, then call [Engine.Start] to
// begin capturing and delaying traffic, [Engine.UpdateDelay] to change
// the hold time without restarting, and [Engine.Stop] to unwind
// cleanly and release every resource.
//
// The engine treats packets as opaque byte blobs plus a routing
// descriptor: it never parses or filters traffic. Only timing is
// manipulated.
package pktdelay
