package game

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Phase is the round phase of a game.
type Phase int

const (
	PhaseIdle        Phase = iota // no round running; book flat
	PhaseRoundActive              // contracts out, fair value hidden, book open
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseRoundActive:
		return "ROUND_ACTIVE"
	default:
		return "UNKNOWN"
	}
}

const (
	// LargeRoomPlayers is the player count from which three dice are used.
	LargeRoomPlayers = 8

	SmallRoomDice = 2
	LargeRoomDice = 3

	// MinPlayers is the smallest room that can start a round: the signal
	// bearer plus one recipient per die.
	MinPlayers = SmallRoomDice + 1
)

// Game is one room's state machine. It is not safe for concurrent use:
// the room layer serializes operations per room.
type Game struct {
	Players      []*Player
	Host         string
	PlayerCount  int
	CurrentRound int
	Timer        time.Time
	FairValue    int
	MarketActive bool
	RoundActive  bool
	Dices        []*Dice
	Coin         *Coin

	MarketBook

	rng    *rand.Rand
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Game.
type Option func(*Game)

// WithRand sets the random source used for signals and contracts.
func WithRand(rng *rand.Rand) Option {
	return func(g *Game) { g.rng = rng }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Game) { g.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// New returns an empty game with an open market and no round.
func New(opts ...Option) *Game {
	g := &Game{
		MarketActive: true,
		Coin:         &Coin{},
		MarketBook:   newMarketBook(),
	}
	g.apply(opts)
	return g
}

func (g *Game) apply(opts []Option) {
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
}

// Phase reports the current round phase.
func (g *Game) Phase() Phase {
	if g.RoundActive {
		return PhaseRoundActive
	}
	return PhaseIdle
}

// Player finds a player by case-insensitive name.
func (g *Game) Player(name string) (*Player, bool) {
	for _, p := range g.Players {
		if p.Is(name) {
			return p, true
		}
	}
	return nil, false
}

// Names returns player names in join order.
func (g *Game) Names() []string {
	names := make([]string, len(g.Players))
	for i, p := range g.Players {
		names[i] = p.Name
	}
	return names
}

// Join adds a player. The first player to join becomes host.
func (g *Game) Join(p *Player) error {
	if _, exists := g.Player(p.Name); exists {
		return Errorf(ErrDuplicateName, "username %q is already taken in this room", p.Name)
	}
	g.Players = append(g.Players, p)
	g.PlayerCount++
	if g.Host == "" {
		g.Host = p.Name
	}
	return nil
}

// Leave removes a player and returns how many remain. Zero means the room
// is empty; deciding what to do with it is up to the caller.
func (g *Game) Leave(name string) (int, error) {
	idx := -1
	for i, p := range g.Players {
		if p.Is(name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(g.Players), Errorf(ErrPlayerNotFound, "player %q not found", name)
	}

	leaving := g.Players[idx]
	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	g.PlayerCount = len(g.Players)
	g.MarketBook.dropPlayer(leaving.Name)

	if g.Host != "" && leaving.Is(g.Host) {
		g.Host = ""
		if len(g.Players) > 0 {
			g.Host = g.Players[0].Name
		}
	}
	return len(g.Players), nil
}

// SetStatus records a connection status change for a player.
func (g *Game) SetStatus(name, status string) error {
	p, ok := g.Player(name)
	if !ok {
		return Errorf(ErrPlayerNotFound, "player %q not found", name)
	}
	p.Status = status
	p.LastActive = g.now()
	return nil
}

// StartGame opens a round. It is rejected while the market is closed or a
// round is already running, and when there are too few players to hand the
// dice to distinct players.
func (g *Game) StartGame() error {
	if !g.MarketActive {
		return Errorf(ErrMarketClosed, "the market is currently closed, cannot start a new round")
	}
	if g.RoundActive {
		return Errorf(ErrRoundActive, "a round is already running, cannot start a new one until it ends")
	}

	diceCount := SmallRoomDice
	if len(g.Players) >= LargeRoomPlayers {
		diceCount = LargeRoomDice
	}
	// One player carries the high/low signal; each die needs a distinct
	// recipient among the rest.
	if len(g.Players)-1 < diceCount {
		g.logger.Warn("round start aborted",
			zap.Int("players", len(g.Players)),
			zap.Int("dice", diceCount))
		return Errorf(ErrNotEnoughPlayers, "need at least %d players to start a round, have %d",
			diceCount+1, len(g.Players))
	}

	g.PlayerCount = len(g.Players)
	g.Timer = g.now()
	g.MarketActive = true
	g.Dices = make([]*Dice, diceCount)
	for i := range g.Dices {
		g.Dices[i] = &Dice{}
	}
	g.Coin = &Coin{}
	g.CurrentRound++
	g.startRound()
	g.RoundActive = true

	g.logger.Info("round started",
		zap.Int("round", g.CurrentRound),
		zap.Int("players", len(g.Players)),
		zap.Int("dice", diceCount))
	return nil
}

// StartNewRound abandons any running round without scoring it and starts
// a fresh one.
func (g *Game) StartNewRound() error {
	if g.RoundActive {
		g.abandonRound()
	}
	return g.StartGame()
}

func (g *Game) abandonRound() {
	for _, p := range g.Players {
		p.resetRound()
		p.Contract = nil
		p.HighLow = ""
	}
	g.MarketBook.Flatten()
	g.RoundActive = false
}

// CloseMarket stops quoting and prevents new rounds. A running round is
// abandoned.
func (g *Game) CloseMarket() {
	if g.RoundActive {
		g.abandonRound()
	}
	g.MarketActive = false
}

// OpenMarket re-enables rounds after CloseMarket.
func (g *Game) OpenMarket() {
	g.MarketActive = true
}

func (g *Game) checkTrading() error {
	if !g.MarketActive {
		return Errorf(ErrMarketClosed, "the market is currently closed, please wait for the next round")
	}
	if !g.RoundActive {
		return Errorf(ErrRoundNotActive, "no active round, start a new round to interact with the market")
	}
	return nil
}

// MakeTheMarket posts a bid or ask. The returned message is meant for the
// room's event log.
func (g *Game) MakeTheMarket(name, action string, number int) (string, error) {
	p, ok := g.Player(name)
	if !ok {
		return "", Errorf(ErrPlayerNotFound, "player %q not found", name)
	}
	action = normalizeAction(action)
	if action != ActionBid && action != ActionAsk {
		return "", Errorf(ErrInvalidAction, "invalid action %q, use 'bid' or 'ask'", action)
	}
	if number < MinQuote || number > MaxQuote {
		return "", Errorf(ErrInvalidNumber, "number must be between %d and %d", MinQuote, MaxQuote)
	}
	if err := g.checkTrading(); err != nil {
		return "", err
	}
	p.LastActive = g.now()
	return g.MarketBook.quote(p, action, number)
}

// TakeTheMarket hits the resting bid or lifts the resting ask.
func (g *Game) TakeTheMarket(name, action string) (Fill, string, error) {
	p, ok := g.Player(name)
	if !ok {
		return Fill{}, "", Errorf(ErrPlayerNotFound, "player %q not found", name)
	}
	action = normalizeAction(action)
	if action != ActionHit && action != ActionLift {
		return Fill{}, "", Errorf(ErrInvalidAction, "invalid action %q, use 'hit' or 'lift'", action)
	}
	if err := g.checkTrading(); err != nil {
		return Fill{}, "", err
	}
	p.LastActive = g.now()
	return g.MarketBook.take(p, action)
}

// RoundAge reports how long the active round has been running.
func (g *Game) RoundAge(now time.Time) time.Duration {
	if !g.RoundActive || g.Timer.IsZero() {
		return 0
	}
	return now.Sub(g.Timer)
}

func (g *Game) String() string {
	return fmt.Sprintf("game{round=%d phase=%s players=%d bid=%d ask=%d}",
		g.CurrentRound, g.Phase(), len(g.Players), g.CurrentBid, g.CurrentAsk)
}
