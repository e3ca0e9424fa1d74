package game

import (
	"errors"
	"testing"
)

func TestTradePnL(t *testing.T) {
	record := []Entry{{KindLong, 10}, {KindShort, 14}}
	if got := TradePnL(record, 12); got != 4 {
		t.Errorf("expected (12-10)+(14-12)=4, got %d", got)
	}

	ignored := []Entry{{KindDiceRoll, 3}, {KindBid, 5}, {KindAsk, 19}}
	if got := TradePnL(ignored, 12); got != 0 {
		t.Errorf("non-trade entries must not score, got %d", got)
	}
}

func TestEndRoundRequiresActiveRound(t *testing.T) {
	g := newTestGame(t, 1, playerNames(3)...)
	if _, err := g.EndRound(); !errors.Is(err, ErrRoundNotActive) {
		t.Errorf("expected ErrRoundNotActive, got %v", err)
	}
}

func TestEndRoundScoresTrades(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol")
	g.FairValue = 12
	for _, p := range g.Players {
		p.Contract = nil
	}
	alice, _ := g.Player("alice")
	alice.Record = []Entry{{KindLong, 10}, {KindShort, 14}}
	alice.CumulativePnL = 7

	summary, err := g.EndRound()
	if err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}
	if summary.FairValue != 12 || summary.Round != 1 {
		t.Errorf("unexpected summary header %+v", summary)
	}
	if alice.CumulativePnL != 11 {
		t.Errorf("expected cumulative 7+4=11, got %d", alice.CumulativePnL)
	}
	if summary.Results[0].TradePnL != 4 || summary.Results[0].Penalty != 0 {
		t.Errorf("unexpected result %+v", summary.Results[0])
	}
}

func TestEndRoundUnmetContractPenalty(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol")
	g.FairValue = 10
	for _, p := range g.Players {
		p.Contract = nil
		p.Record = nil
	}
	alice, _ := g.Player("alice")
	alice.Contract = &Contract{Direction: Long, RequiredTrades: 3}
	alice.BuyCount = 1
	alice.Record = []Entry{{KindLong, 8}}

	summary, err := g.EndRound()
	if err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}

	// -100 penalty plus (10-8) trade P/L.
	if alice.CumulativePnL != -98 {
		t.Errorf("expected -98, got %d", alice.CumulativePnL)
	}
	res := summary.Results[0]
	if res.Fulfilled || res.Penalty != UnmetContractPenalty {
		t.Errorf("expected unfulfilled with penalty, got %+v", res)
	}
}

func TestEndRoundFulfilledContracts(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol")
	g.FairValue = 10
	for _, p := range g.Players {
		p.Contract = nil
		p.Record = nil
	}
	alice, _ := g.Player("alice")
	bob, _ := g.Player("bob")
	alice.Contract = &Contract{Direction: Short, RequiredTrades: 2}
	alice.SellCount = 2
	bob.Contract = &Contract{Direction: Long, RequiredTrades: 1}
	bob.BuyCount = 0
	bob.SellCount = 4

	if _, err := g.EndRound(); err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}
	if alice.CumulativePnL != 0 {
		t.Errorf("fulfilled short contract must not be penalised, got %d", alice.CumulativePnL)
	}
	if bob.CumulativePnL != -UnmetContractPenalty {
		t.Errorf("sells do not count towards a long contract, got %d", bob.CumulativePnL)
	}
}

func TestEndRoundResetsRoundState(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol", "dave")
	if _, err := g.MakeTheMarket("alice", ActionBid, 8); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := g.MakeTheMarket("bob", ActionAsk, 13); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if _, _, err := g.TakeTheMarket("carol", ActionLift); err != nil {
		t.Fatalf("lift failed: %v", err)
	}
	if _, err := g.MakeTheMarket("dave", ActionAsk, 18); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	fair := g.FairValue

	if _, err := g.EndRound(); err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}

	if g.RoundActive {
		t.Error("round should be over")
	}
	if g.CurrentRound != 2 {
		t.Errorf("expected round counter 2, got %d", g.CurrentRound)
	}
	if !g.Flat() {
		t.Errorf("expected flat book, got bid=%d ask=%d", g.CurrentBid, g.CurrentAsk)
	}
	if g.FairValue != fair {
		t.Error("fair value is left in place after settlement")
	}
	for _, p := range g.Players {
		if len(p.Record) != 0 || p.BuyCount != 0 || p.SellCount != 0 {
			t.Errorf("%s: round state not cleared: record=%v buy=%d sell=%d", p.Name, p.Record, p.BuyCount, p.SellCount)
		}
	}
}

func TestCumulativePnLCarriesAcrossRounds(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol")
	for round := 0; round < 3; round++ {
		for _, p := range g.Players {
			p.Contract = nil
		}
		g.FairValue = 10
		alice, _ := g.Player("alice")
		alice.Record = append(alice.Record, Entry{KindShort, 15})
		if _, err := g.EndRound(); err != nil {
			t.Fatalf("EndRound failed: %v", err)
		}
		if err := g.StartGame(); err != nil {
			t.Fatalf("StartGame failed: %v", err)
		}
	}
	alice, _ := g.Player("alice")
	if alice.CumulativePnL != 15 {
		t.Errorf("expected 3 rounds of +5, got %d", alice.CumulativePnL)
	}
}
