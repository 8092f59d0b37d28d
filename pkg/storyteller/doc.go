// Package storyteller decouples the production of status events from their
// consumption. A Reporter sends events over an unbounded channel to a Listener,
// which runs a caller-supplied Handler on a background goroutine.
//
// Shutdown is a handshake: the Reporter disconnects, the Listener drains every
// event sent before the disconnect, calls the Handler's Finish once, and then
// either acknowledges the disconnect (rendezvous mode) or simply terminates so
// the caller can wait on the FinalizeHandle (finalize mode).
//
//	reporter, listener := storyteller.NewPair[Event](storyteller.ModeFinalize)
//	fin, err := listener.RunHandler(handler)
//	...
//	_ = reporter.ReportEvent(evt)
//	_ = reporter.Disconnect(ctx)
//	err = fin.FinishProcessing(ctx)
//
// There is no mid-stream cancellation. Events still queued when a handler
// faults are never handled.
package storyteller
