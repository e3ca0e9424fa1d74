package game

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol", "dave")
	if _, err := g.MakeTheMarket("alice", ActionBid, 9); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if _, err := g.MakeTheMarket("bob", ActionAsk, 16); err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	data, err := json.Marshal(g.Snapshot())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	restored := FromSnapshot(&snap)

	if restored.CurrentRound != g.CurrentRound || restored.FairValue != g.FairValue || !restored.RoundActive {
		t.Errorf("round state lost: %s vs %s", restored, g)
	}
	if restored.Host != "alice" || len(restored.Players) != 4 {
		t.Errorf("roster lost: host=%s players=%d", restored.Host, len(restored.Players))
	}
	if len(restored.Dices) != len(g.Dices) || restored.Dices[0].Value != g.Dices[0].Value {
		t.Error("dice values lost")
	}
	if restored.Coin.Value != g.Coin.Value {
		t.Errorf("coin lost: %q vs %q", restored.Coin.Value, g.Coin.Value)
	}

	// References must point into the rebuilt roster, not be copies.
	alice, _ := restored.Player("alice")
	if restored.BidPlayer != alice {
		t.Error("bid player not re-resolved against the player list")
	}
	if restored.CurrentBid != 9 || restored.CurrentAsk != 16 {
		t.Errorf("book lost: bid=%d ask=%d", restored.CurrentBid, restored.CurrentAsk)
	}
	for i, p := range restored.Players {
		orig := g.Players[i]
		if len(p.Record) != len(orig.Record) {
			t.Errorf("%s: record lost", p.Name)
		}
		if (p.Contract == nil) != (orig.Contract == nil) {
			t.Errorf("%s: contract lost", p.Name)
		}
		if p.HighLow != orig.HighLow {
			t.Errorf("%s: high/low lost", p.Name)
		}
	}

	// The restored game keeps trading.
	if _, _, err := restored.TakeTheMarket("carol", ActionHit); err != nil {
		t.Fatalf("hit on restored game failed: %v", err)
	}
}

func TestSnapshotRecordEncoding(t *testing.T) {
	g := startedGame(t, "alice", "bob", "carol")
	if _, err := g.MakeTheMarket("alice", ActionBid, 4); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	data, err := json.Marshal(g.Snapshot())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `["bid",4]`) {
		t.Errorf("expected record pairs in %s", data)
	}
}

func TestFromSnapshotDropsUnresolvedQuote(t *testing.T) {
	ghost := "ghost"
	snap := &Snapshot{
		Players: []PlayerSnapshot{
			{Username: "alice", Status: StatusActive},
			{Username: "bob", Status: StatusActive},
		},
		Host:         "alice",
		CurrentRound: 1,
		CurrentBid:   12,
		CurrentAsk:   NoAsk,
		BidPlayer:    &ghost,
		MarketActive: true,
		RoundActive:  true,
	}

	g := FromSnapshot(snap)

	if g.BidPlayer != nil || g.CurrentBid != NoBid {
		t.Errorf("expected orphaned bid to be dropped, got %d by %v", g.CurrentBid, g.BidPlayer)
	}
	if _, _, err := g.TakeTheMarket("bob", ActionHit); KindOf(err) != KindConflict {
		t.Errorf("expected a conflict on the orphaned quote, got %v", err)
	}
}

func TestFromSnapshotDropsOwnerOfEmptySide(t *testing.T) {
	alice, bob := "alice", "bob"
	snap := &Snapshot{
		Players: []PlayerSnapshot{
			{Username: "alice", Status: StatusActive},
			{Username: "bob", Status: StatusActive},
		},
		Host:         "alice",
		CurrentRound: 1,
		CurrentBid:   NoBid,
		CurrentAsk:   NoAsk,
		BidPlayer:    &alice,
		AskPlayer:    &bob,
		MarketActive: true,
		RoundActive:  true,
	}

	g := FromSnapshot(snap)

	if g.BidPlayer != nil || g.CurrentBid != NoBid {
		t.Errorf("expected empty bid side without owner, got %d by %v", g.CurrentBid, g.BidPlayer)
	}
	if g.AskPlayer != nil || g.CurrentAsk != NoAsk {
		t.Errorf("expected empty ask side without owner, got %d by %v", g.CurrentAsk, g.AskPlayer)
	}
	if !g.Flat() {
		t.Error("expected a flat book")
	}

	out := g.Snapshot()
	if out.BidPlayer != nil || out.AskPlayer != nil {
		t.Errorf("expected no quote owners after re-encoding, got %v / %v", out.BidPlayer, out.AskPlayer)
	}
}

func TestFromSnapshotResolvesNamesCaseInsensitively(t *testing.T) {
	name := "ALICE"
	snap := &Snapshot{
		Players:      []PlayerSnapshot{{Username: "alice"}},
		CurrentAsk:   11,
		AskPlayer:    &name,
		MarketActive: true,
	}

	g := FromSnapshot(snap)
	if g.AskPlayer == nil || g.AskPlayer.Name != "alice" {
		t.Errorf("expected ask held by alice, got %v", g.AskPlayer)
	}
	if g.Players[0].Status != StatusActive {
		t.Errorf("missing status should default to active, got %q", g.Players[0].Status)
	}
}
