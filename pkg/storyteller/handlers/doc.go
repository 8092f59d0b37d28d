// Package handlers ships ready-made storyteller.Handler implementations:
// JSON lines output, structured logging, Prometheus counters, a terminal
// progress display, a publisher bridge and an event-log store bridge.
//
// Every handler here is generic over the event type. Handlers that need to
// understand an event take a small mapping function instead of requiring the
// event type to implement an interface.
package handlers
