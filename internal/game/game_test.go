package game

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

func newTestGame(t *testing.T, seed int64, names ...string) *Game {
	t.Helper()
	g := New(WithRand(rand.New(rand.NewSource(seed))))
	for _, name := range names {
		if err := g.Join(NewPlayer(name)); err != nil {
			t.Fatalf("Join(%s) failed: %v", name, err)
		}
	}
	return g
}

func playerNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("player%d", i+1)
	}
	return names
}

func TestNewGameDefaults(t *testing.T) {
	g := New()

	if !g.MarketActive {
		t.Error("expected market to be active")
	}
	if g.RoundActive {
		t.Error("expected no active round")
	}
	if g.Phase() != PhaseIdle {
		t.Errorf("expected PhaseIdle, got %s", g.Phase())
	}
	if g.CurrentBid != NoBid || g.CurrentAsk != NoAsk {
		t.Errorf("expected flat book, got bid=%d ask=%d", g.CurrentBid, g.CurrentAsk)
	}
}

func TestJoinSetsHostAndCount(t *testing.T) {
	g := newTestGame(t, 1, "alice", "bob")

	if g.Host != "alice" {
		t.Errorf("expected host alice, got %s", g.Host)
	}
	if g.PlayerCount != 2 {
		t.Errorf("expected player count 2, got %d", g.PlayerCount)
	}
	if got := g.Names(); got[0] != "alice" || got[1] != "bob" {
		t.Errorf("expected join order [alice bob], got %v", got)
	}
}

func TestJoinDuplicateNameIsCaseInsensitive(t *testing.T) {
	g := newTestGame(t, 1, "alice")

	err := g.Join(NewPlayer("ALICE"))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if KindOf(err) != KindCapacity {
		t.Errorf("expected capacity kind, got %s", KindOf(err))
	}
	if len(g.Players) != 1 || g.PlayerCount != 1 {
		t.Errorf("duplicate join must not mutate the roster, got %d players", len(g.Players))
	}
}

func TestJoinAllowedDuringRound(t *testing.T) {
	g := newTestGame(t, 1, playerNames(3)...)
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if err := g.Join(NewPlayer("late")); err != nil {
		t.Fatalf("Join during round failed: %v", err)
	}
}

func TestLeave(t *testing.T) {
	g := newTestGame(t, 1, "alice", "bob", "carol")

	remaining, err := g.Leave("BOB")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if remaining != 2 {
		t.Errorf("expected 2 remaining, got %d", remaining)
	}
	if _, ok := g.Player("bob"); ok {
		t.Error("bob should be gone")
	}

	if _, err := g.Leave("nobody"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestLeaveLastPlayerEmptiesRoom(t *testing.T) {
	g := newTestGame(t, 1, "alice")

	remaining, err := g.Leave("alice")
	if err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected empty room, got %d", remaining)
	}
	if g.Host != "" {
		t.Errorf("expected no host, got %s", g.Host)
	}
}

func TestLeaveHostPassesToNextPlayer(t *testing.T) {
	g := newTestGame(t, 1, "alice", "bob", "carol")

	if _, err := g.Leave("alice"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if g.Host != "bob" {
		t.Errorf("expected host bob, got %s", g.Host)
	}
}

func TestLeaveDropsQuotes(t *testing.T) {
	g := newTestGame(t, 1, "alice", "bob", "carol")
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if _, err := g.MakeTheMarket("alice", ActionBid, 8); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := g.MakeTheMarket("alice", ActionAsk, 12); err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if _, err := g.Leave("alice"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if !g.Flat() {
		t.Errorf("expected flat book after quoter left, got bid=%d ask=%d", g.CurrentBid, g.CurrentAsk)
	}
}

func TestSetStatus(t *testing.T) {
	g := newTestGame(t, 1, "alice")

	if err := g.SetStatus("Alice", StatusDisconnected); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	p, _ := g.Player("alice")
	if p.Status != StatusDisconnected {
		t.Errorf("expected disconnected, got %s", p.Status)
	}
	if err := g.SetStatus("bob", StatusActive); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestStartGameAssignsRoles(t *testing.T) {
	// Five players: one signal-bearer, two dice recipients, two contracts.
	for seed := int64(1); seed <= 50; seed++ {
		g := newTestGame(t, seed, playerNames(5)...)
		if err := g.StartGame(); err != nil {
			t.Fatalf("seed %d: StartGame failed: %v", seed, err)
		}

		if !g.RoundActive || g.CurrentRound != 1 {
			t.Fatalf("seed %d: expected active round 1, got active=%v round=%d", seed, g.RoundActive, g.CurrentRound)
		}
		if len(g.Dices) != SmallRoomDice {
			t.Fatalf("seed %d: expected %d dice, got %d", seed, SmallRoomDice, len(g.Dices))
		}

		var bearers, recipients, contracts int
		var highLow string
		var rolls []int
		for _, p := range g.Players {
			roll, hasRoll := p.DiceRoll()
			switch {
			case p.HighLow != "":
				bearers++
				highLow = p.HighLow
				if hasRoll || p.Contract != nil {
					t.Errorf("seed %d: signal-bearer %s must not get a die or contract", seed, p.Name)
				}
			case hasRoll:
				recipients++
				rolls = append(rolls, roll)
				if p.Contract != nil {
					t.Errorf("seed %d: dice recipient %s must not get a contract", seed, p.Name)
				}
				if len(p.Record) != 1 {
					t.Errorf("seed %d: dice recipient %s should have exactly one record entry, got %v", seed, p.Name, p.Record)
				}
			default:
				contracts++
				if p.Contract == nil {
					t.Fatalf("seed %d: %s has no role", seed, p.Name)
				}
				if p.Contract.RequiredTrades < MinRequiredTrades || p.Contract.RequiredTrades > MaxRequiredTrades {
					t.Errorf("seed %d: required trades %d out of range", seed, p.Contract.RequiredTrades)
				}
				if p.Contract.Direction != Long && p.Contract.Direction != Short {
					t.Errorf("seed %d: unexpected direction %q", seed, p.Contract.Direction)
				}
			}
		}

		if bearers != 1 {
			t.Errorf("seed %d: expected 1 signal-bearer, got %d", seed, bearers)
		}
		if recipients != len(g.Dices) {
			t.Errorf("seed %d: expected %d dice recipients, got %d", seed, len(g.Dices), recipients)
		}
		if contracts != 2 {
			t.Errorf("seed %d: expected 2 contracts, got %d", seed, contracts)
		}

		want := rolls[0]
		for _, r := range rolls[1:] {
			if (highLow == High && r > want) || (highLow == Low && r < want) {
				want = r
			}
		}
		if g.FairValue != want {
			t.Errorf("seed %d: expected fair value %d (%s of %v), got %d", seed, want, highLow, rolls, g.FairValue)
		}
		if g.Coin.Value != highLow {
			t.Errorf("seed %d: coin %q does not match signal %q", seed, g.Coin.Value, highLow)
		}
	}
}

func TestStartGameDiceCount(t *testing.T) {
	tests := []struct {
		players int
		dice    int
	}{
		{3, 2},
		{7, 2},
		{8, 3},
		{10, 3},
	}
	for _, tt := range tests {
		g := newTestGame(t, 7, playerNames(tt.players)...)
		if err := g.StartGame(); err != nil {
			t.Fatalf("%d players: StartGame failed: %v", tt.players, err)
		}
		if len(g.Dices) != tt.dice {
			t.Errorf("%d players: expected %d dice, got %d", tt.players, tt.dice, len(g.Dices))
		}
	}
}

func TestStartGameNotEnoughPlayers(t *testing.T) {
	g := newTestGame(t, 1, "alice", "bob")

	err := g.StartGame()
	if !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}
	if g.RoundActive || g.CurrentRound != 0 || g.Dices != nil {
		t.Errorf("aborted start must not mutate state: active=%v round=%d dice=%v", g.RoundActive, g.CurrentRound, g.Dices)
	}
	for _, p := range g.Players {
		if p.HighLow != "" || len(p.Record) != 0 {
			t.Errorf("aborted start leaked signals to %s", p.Name)
		}
	}
}

func TestStartGameRejectedWhileActive(t *testing.T) {
	g := newTestGame(t, 1, playerNames(4)...)
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	fair := g.FairValue

	err := g.StartGame()
	if !errors.Is(err, ErrRoundActive) {
		t.Fatalf("expected ErrRoundActive, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Errorf("expected conflict kind, got %s", KindOf(err))
	}
	if g.CurrentRound != 1 || g.FairValue != fair {
		t.Error("rejected start must not change the round")
	}
}

func TestStartGameRejectedWhenMarketClosed(t *testing.T) {
	g := newTestGame(t, 1, playerNames(4)...)
	g.CloseMarket()

	if err := g.StartGame(); !errors.Is(err, ErrMarketClosed) {
		t.Fatalf("expected ErrMarketClosed, got %v", err)
	}

	g.OpenMarket()
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame after reopening failed: %v", err)
	}
}

func TestCloseMarketAbandonsRound(t *testing.T) {
	g := newTestGame(t, 1, playerNames(4)...)
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if _, err := g.MakeTheMarket("player1", ActionBid, 5); err != nil {
		t.Fatalf("bid failed: %v", err)
	}

	g.CloseMarket()

	if g.RoundActive || g.MarketActive {
		t.Error("expected round and market to be closed")
	}
	if !g.Flat() {
		t.Error("expected flat book")
	}
}

func TestStartNewRoundIsIdempotent(t *testing.T) {
	g := newTestGame(t, 3, playerNames(5)...)

	for i := 1; i <= 2; i++ {
		if err := g.StartNewRound(); err != nil {
			t.Fatalf("StartNewRound #%d failed: %v", i, err)
		}
		if !g.RoundActive {
			t.Fatalf("StartNewRound #%d: round not active", i)
		}
		if g.CurrentRound != i {
			t.Errorf("StartNewRound #%d: expected round %d, got %d", i, i, g.CurrentRound)
		}
		if g.FairValue < 1 || g.FairValue > DieFaces {
			t.Errorf("StartNewRound #%d: fair value %d out of range", i, g.FairValue)
		}
		assertFullyFormedRound(t, g)
	}
}

func TestStartNewRoundClearsPreviousRound(t *testing.T) {
	g := newTestGame(t, 3, playerNames(5)...)
	if err := g.StartGame(); err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if _, err := g.MakeTheMarket("player1", ActionBid, 9); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, _, err := g.TakeTheMarket("player2", ActionHit); err != nil {
		t.Fatalf("hit failed: %v", err)
	}

	if err := g.StartNewRound(); err != nil {
		t.Fatalf("StartNewRound failed: %v", err)
	}
	for _, p := range g.Players {
		if p.BuyCount != 0 || p.SellCount != 0 {
			t.Errorf("%s carried counts into the new round: buy=%d sell=%d", p.Name, p.BuyCount, p.SellCount)
		}
		for _, e := range p.Record {
			if e.Kind != KindDiceRoll {
				t.Errorf("%s carried %v into the new round", p.Name, e)
			}
		}
	}
	assertFullyFormedRound(t, g)
}

func assertFullyFormedRound(t *testing.T, g *Game) {
	t.Helper()
	var bearers, recipients, contracts int
	for _, p := range g.Players {
		_, hasRoll := p.DiceRoll()
		switch {
		case p.HighLow != "":
			bearers++
		case hasRoll:
			recipients++
		case p.Contract != nil:
			contracts++
		}
	}
	if bearers != 1 || recipients != len(g.Dices) || bearers+recipients+contracts != len(g.Players) {
		t.Errorf("round not fully formed: bearers=%d recipients=%d contracts=%d players=%d",
			bearers, recipients, contracts, len(g.Players))
	}
}

func TestOutcomeOf(t *testing.T) {
	ok := OutcomeOf("done", nil)
	if !ok.Success || ok.Message != "done" {
		t.Errorf("unexpected outcome %+v", ok)
	}

	rejected := OutcomeOf("", Errorf(ErrStaleQuote, "too low"))
	if rejected.Success || rejected.Message != "too low" {
		t.Errorf("unexpected outcome %+v", rejected)
	}

	internal := OutcomeOf("", errors.New("disk on fire"))
	if internal.Success || internal.Message != "internal error" {
		t.Errorf("internal errors must not leak details, got %+v", internal)
	}
}
