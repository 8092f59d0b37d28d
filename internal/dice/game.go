package dice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/storyteller/pkg/storyteller"
)

// Clock abstracts time for the game so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Config controls a game.
//   - Rounds: throws per player (required, > 0).
//   - Players: concurrent players sharing one reporter (default 1).
//   - WinThreshold: a throw at or above it wins the round (default 3).
//   - Delay: pause between rounds.
//   - Seed: fixes the dice; zero seeds from the current time.
//   - RunID: stamped on every event.
type Config struct {
	Rounds       int
	Players      int
	WinThreshold int
	Delay        time.Duration
	Seed         uint64
	RunID        string
}

const defaultWinThreshold = 3

// Summary totals a finished game.
type Summary struct {
	Throws int64
	Wins   int64
	Losses int64
}

// Game rolls dice for every player and reports what happens.
type Game struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger
}

// NewGame validates cfg and returns a Game.
func NewGame(cfg Config, clock Clock, logger *zap.Logger) (*Game, error) {
	if cfg.Rounds <= 0 {
		return nil, errors.New("dice game: rounds must be > 0")
	}
	if clock == nil {
		return nil, errors.New("dice game: clock is nil")
	}
	if cfg.Players <= 0 {
		cfg.Players = 1
	}
	if cfg.WinThreshold <= 0 {
		cfg.WinThreshold = defaultWinThreshold
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Game{cfg: cfg, clock: clock, logger: logger}, nil
}

// Play runs every player concurrently against reporter and returns once all
// players are done. The first reporting failure stops the remaining players.
// Play does not disconnect the reporter.
func (g *Game) Play(ctx context.Context, reporter storyteller.EventReporter[Event]) (Summary, error) {
	var (
		throws atomic.Int64
		wins   atomic.Int64
		losses atomic.Int64
	)
	grp, ctx := errgroup.WithContext(ctx)
	for player := 1; player <= g.cfg.Players; player++ {
		grp.Go(func() error {
			roller := rand.New(rand.NewPCG(g.cfg.Seed, uint64(player)))
			if err := g.report(reporter, Event{Type: KindText, Player: player, Text: fmt.Sprintf("player %d joins", player)}); err != nil {
				return err
			}
			for round := 1; round <= g.cfg.Rounds; round++ {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("player %d: %w", player, err)
				}
				throw := roller.IntN(6) + 1
				outcome := KindLose
				if throw >= g.cfg.WinThreshold {
					outcome = KindWin
				}
				for _, evt := range []Event{
					{Type: KindThrow, Player: player, Round: round, Throw: throw},
					{Type: outcome, Player: player, Round: round},
					{Type: KindIncrement, Player: player, Round: round},
				} {
					if err := g.report(reporter, evt); err != nil {
						return err
					}
				}
				throws.Add(1)
				if outcome == KindWin {
					wins.Add(1)
				} else {
					losses.Add(1)
				}
				g.clock.Sleep(g.cfg.Delay)
			}
			g.logger.Debug("player finished", zap.Int("player", player), zap.Int("rounds", g.cfg.Rounds))
			return nil
		})
	}
	err := grp.Wait()
	summary := Summary{Throws: throws.Load(), Wins: wins.Load(), Losses: losses.Load()}
	if err != nil {
		return summary, fmt.Errorf("play dice: %w", err)
	}
	return summary, nil
}

func (g *Game) report(reporter storyteller.EventReporter[Event], evt Event) error {
	evt.RunID = g.cfg.RunID
	evt.At = g.clock.Now()
	if err := reporter.ReportEvent(evt); err != nil {
		g.logger.Warn("dice event not reported", zap.String("type", string(evt.Type)), zap.Error(err))
		return fmt.Errorf("report %s: %w", evt.Type, err)
	}
	return nil
}

// StatusScript reports the scripted status sequence used to exercise
// progress displays: messages interleaved with increments and a reset.
func StatusScript(reporter storyteller.EventReporter[Event], clock Clock, runID string) error {
	text := func(s string) Event { return Event{Type: KindText, Text: s} }
	inc := Event{Type: KindIncrement}
	script := []Event{
		text("[status]\tOne"), inc, inc,
		text("[status::before]\tTwo before reset"), {Type: KindReset},
		text("[status::after]\tTwo after reset"), inc, inc, inc, inc, inc, inc,
		text("[status]\tThree"), inc, inc, inc,
		text("[status]\tFour"),
	}
	for _, evt := range script {
		evt.RunID = runID
		evt.At = clock.Now()
		if err := reporter.ReportEvent(evt); err != nil {
			return fmt.Errorf("report status %s: %w", evt.Type, err)
		}
	}
	return nil
}
