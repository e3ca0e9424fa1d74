package game

import (
	"fmt"
	"strings"
)

const (
	MinQuote = 1
	MaxQuote = DieFaces

	// NoBid and NoAsk are the sentinels for an empty side of the book.
	NoBid = 0
	NoAsk = MaxQuote + 1
)

// Quote and take actions.
const (
	ActionBid  = "bid"
	ActionAsk  = "ask"
	ActionHit  = "hit"
	ActionLift = "lift"
)

// MarketBook is a depth-1 book: at most one resting bid and one resting
// ask. A better quote replaces the resting one; a take fills it entirely.
//
// Invariant: CurrentBid < CurrentAsk, BidPlayer != nil iff CurrentBid > NoBid, and AskPlayer != nil
// iff CurrentAsk < NoAsk. The player pointers are references into the
// game's player list, never owners.
type MarketBook struct {
	CurrentBid int
	CurrentAsk int
	BidPlayer  *Player
	AskPlayer  *Player

	// Set for the duration of a take; cleared with the side it filled.
	HitPlayer  *Player
	LiftPlayer *Player
}

func newMarketBook() MarketBook {
	return MarketBook{CurrentBid: NoBid, CurrentAsk: NoAsk}
}

// Fill describes one executed trade.
type Fill struct {
	Action string `json:"action"`
	Price  int    `json:"price"`
	Taker  string `json:"taker"`
	Maker  string `json:"maker"`
}

// Flat reports whether neither side has a live quote.
func (b *MarketBook) Flat() bool {
	return b.CurrentBid == NoBid && b.CurrentAsk == NoAsk && b.BidPlayer == nil && b.AskPlayer == nil
}

// Flatten removes both quotes and all references.
func (b *MarketBook) Flatten() {
	b.clearBid()
	b.clearAsk()
}

func (b *MarketBook) clearBid() {
	b.CurrentBid = NoBid
	b.BidPlayer = nil
	b.HitPlayer = nil
}

func (b *MarketBook) clearAsk() {
	b.CurrentAsk = NoAsk
	b.AskPlayer = nil
	b.LiftPlayer = nil
}

// quote posts a bid or ask for p. The action and number must already be
// validated.
func (b *MarketBook) quote(p *Player, action string, number int) (string, error) {
	switch action {
	case ActionBid:
		if number <= b.CurrentBid {
			return "", Errorf(ErrStaleQuote, "bid must be higher than the current bid of $%d", b.CurrentBid)
		}
		if number >= b.CurrentAsk {
			return "", Errorf(ErrCrossedQuote, "bid of $%d would cross the ask of $%d, lift it instead", number, b.CurrentAsk)
		}
		b.CurrentBid = number
		b.BidPlayer = p
		p.record(KindBid, number)
		return fmt.Sprintf("%s has placed a bid for $%d.", p.Name, number), nil
	default:
		if number >= b.CurrentAsk {
			return "", Errorf(ErrStaleQuote, "ask must be lower than the current ask of $%d", b.CurrentAsk)
		}
		if number <= b.CurrentBid {
			return "", Errorf(ErrCrossedQuote, "ask of $%d would cross the bid of $%d, hit it instead", number, b.CurrentBid)
		}
		b.CurrentAsk = number
		b.AskPlayer = p
		p.record(KindAsk, number)
		return fmt.Sprintf("%s has placed an ask for $%d.", p.Name, number), nil
	}
}

// take fills the resting quote on one side against taker.
func (b *MarketBook) take(taker *Player, action string) (Fill, string, error) {
	switch action {
	case ActionHit:
		if b.CurrentBid == NoBid || b.BidPlayer == nil {
			return Fill{}, "", Errorf(ErrNoQuote, "no valid bid available to hit")
		}
		if b.BidPlayer.Is(taker.Name) {
			return Fill{}, "", Errorf(ErrSelfTrade, "you cannot hit your own bid")
		}
		b.HitPlayer = taker
		price, maker := b.CurrentBid, b.BidPlayer
		b.HitPlayer.SellCount++
		b.HitPlayer.record(KindShort, price)
		maker.BuyCount++
		maker.record(KindLong, price)
		b.clearBid()
		fill := Fill{Action: ActionHit, Price: price, Taker: taker.Name, Maker: maker.Name}
		return fill, fmt.Sprintf("%s sold to %s at the bid price of $%d.", taker.Name, maker.Name, price), nil
	default:
		if b.CurrentAsk == NoAsk || b.AskPlayer == nil {
			return Fill{}, "", Errorf(ErrNoQuote, "no valid ask available to lift")
		}
		if b.AskPlayer.Is(taker.Name) {
			return Fill{}, "", Errorf(ErrSelfTrade, "you cannot lift your own ask")
		}
		b.LiftPlayer = taker
		price, maker := b.CurrentAsk, b.AskPlayer
		b.LiftPlayer.BuyCount++
		b.LiftPlayer.record(KindLong, price)
		maker.SellCount++
		maker.record(KindShort, price)
		b.clearAsk()
		fill := Fill{Action: ActionLift, Price: price, Taker: taker.Name, Maker: maker.Name}
		return fill, fmt.Sprintf("%s bought from %s at the ask price of $%d.", taker.Name, maker.Name, price), nil
	}
}

// dropPlayer removes any quote held by the named player.
func (b *MarketBook) dropPlayer(name string) {
	if b.BidPlayer.Is(name) {
		b.clearBid()
	}
	if b.AskPlayer.Is(name) {
		b.clearAsk()
	}
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
