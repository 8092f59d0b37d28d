package storyteller

import "fmt"

// Mode selects the shutdown handshake wired by NewPair.
type Mode string

// Supported handshake modes.
const (
	// ModeFinalize: Disconnect only closes the channel; wait with
	// FinalizeHandle.FinishProcessing.
	ModeFinalize Mode = "finalize"
	// ModeRendezvous: Disconnect returns only after the handler's Finish ran.
	ModeRendezvous Mode = "rendezvous"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFinalize, "":
		return ModeFinalize, nil
	case ModeRendezvous:
		return ModeRendezvous, nil
	default:
		return "", fmt.Errorf("unknown reporter mode %q", s)
	}
}

// NewPair creates an event channel (and, for ModeRendezvous, a disconnect
// channel) and returns a connected Reporter and Listener.
func NewPair[E any](mode Mode, opts ...ListenerOption) (*Reporter[E], *Listener[E]) {
	sender, receiver := NewEventChannel[E]()
	if mode != ModeRendezvous {
		return NewReporter(sender), NewListener(receiver, opts...)
	}
	ackSender, ackReceiver := NewDisconnectChannel()
	reporter := NewReporter(sender, WithDisconnectAck(ackReceiver))
	listener := NewListener(receiver, append([]ListenerOption{WithAcknowledger(ackSender)}, opts...)...)
	return reporter, listener
}
