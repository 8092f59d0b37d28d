// Package dice is the demo domain for storyteller: a dice game whose players
// report every throw and its outcome as events.
package dice

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storyteller/pkg/storyteller/handlers"
)

// Kind identifies what an Event reports.
type Kind string

// Supported event kinds.
const (
	KindThrow     Kind = "dice_throw"
	KindWin       Kind = "you_win"
	KindLose      Kind = "you_lose"
	KindText      Kind = "text"
	KindIncrement Kind = "increment"
	KindReset     Kind = "reset"
)

// Event is one step of a game or status script.
type Event struct {
	// Type is the event kind.
	Type Kind `json:"type"`
	// RunID ties together every event of one invocation.
	RunID string `json:"run_id,omitempty"`
	// Player is the 1-based player number; zero for status events.
	Player int `json:"player,omitempty"`
	// Round is the 1-based round a throw or outcome belongs to.
	Round int `json:"round,omitempty"`
	// Throw is the rolled value, 1 through 6.
	Throw int `json:"throw,omitempty"`
	// Text carries the message of a KindText event.
	Text string `json:"text,omitempty"`
	// At is when the event was produced.
	At time.Time `json:"at"`
}

func (e Event) String() string {
	switch e.Type {
	case KindThrow:
		return fmt.Sprintf("player %d threw %d in round %d", e.Player, e.Throw, e.Round)
	case KindWin:
		return fmt.Sprintf("player %d wins round %d", e.Player, e.Round)
	case KindLose:
		return fmt.Sprintf("player %d loses round %d", e.Player, e.Round)
	case KindText:
		return e.Text
	default:
		return string(e.Type)
	}
}

// Fields maps an event to log fields for handlers.Log.
func Fields(e Event) []zap.Field {
	fields := []zap.Field{zap.String("type", string(e.Type)), zap.String("run_id", e.RunID)}
	if e.Player > 0 {
		fields = append(fields, zap.Int("player", e.Player), zap.Int("round", e.Round))
	}
	if e.Type == KindThrow {
		fields = append(fields, zap.Int("throw", e.Throw))
	}
	if e.Text != "" {
		fields = append(fields, zap.String("text", e.Text))
	}
	return fields
}

// Sample maps an event for handlers.Prometheus; throws carry their value.
func Sample(e Event) handlers.Sample {
	return handlers.Sample{Kind: string(e.Type), Value: float64(e.Throw), HasValue: e.Type == KindThrow}
}

// KindOf maps an event to its store record kind.
func KindOf(e Event) string {
	return string(e.Type)
}

// Step maps an event for handlers.Terminal. Throws are only shown through
// their outcome and the round counter.
func Step(e Event) handlers.Step {
	switch e.Type {
	case KindText:
		return handlers.Step{Action: handlers.ActionMessage, Text: e.Text}
	case KindIncrement:
		return handlers.Step{Action: handlers.ActionIncrement}
	case KindReset:
		return handlers.Step{Action: handlers.ActionReset}
	case KindWin:
		return handlers.Step{Action: handlers.ActionSuccess, Text: e.String()}
	case KindLose:
		return handlers.Step{Action: handlers.ActionFailure, Text: e.String()}
	default:
		return handlers.Step{Action: handlers.ActionSkip}
	}
}
