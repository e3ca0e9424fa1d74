package game

import "time"

// Snapshot is the serialized form of a Game as kept by the room store.
type Snapshot struct {
	Players      []PlayerSnapshot `json:"players"`
	Host         string           `json:"host"`
	PlayerCount  int              `json:"player_count"`
	CurrentRound int              `json:"current_round"`
	Timer        time.Time        `json:"timer"`
	Dices        []int            `json:"dices"`
	Coin         *string          `json:"coin"`
	CurrentBid   int              `json:"current_bid"`
	CurrentAsk   int              `json:"current_ask"`
	BidPlayer    *string          `json:"bid_player"`
	AskPlayer    *string          `json:"ask_player"`
	HitPlayer    *string          `json:"hit_player"`
	LiftPlayer   *string          `json:"lift_player"`
	MarketActive bool             `json:"market_active"`
	RoundActive  bool             `json:"round_active"`
	FairValue    int              `json:"fair_value"`
}

type PlayerSnapshot struct {
	Username      string    `json:"username"`
	Status        string    `json:"status"`
	LastActive    time.Time `json:"last_active"`
	HighLow       *string   `json:"high_low"`
	Contract      *Contract `json:"contract"`
	BuyCount      int       `json:"buy_count"`
	SellCount     int       `json:"sell_count"`
	Record        []Entry   `json:"record"`
	CumulativePnL int       `json:"cumulative_pnl"`
}

// Snapshot captures the game's full state. Player references are written
// by name.
func (g *Game) Snapshot() *Snapshot {
	s := &Snapshot{
		Players:      make([]PlayerSnapshot, len(g.Players)),
		Host:         g.Host,
		PlayerCount:  g.PlayerCount,
		CurrentRound: g.CurrentRound,
		Timer:        g.Timer,
		CurrentBid:   g.CurrentBid,
		CurrentAsk:   g.CurrentAsk,
		BidPlayer:    nameOf(g.BidPlayer),
		AskPlayer:    nameOf(g.AskPlayer),
		HitPlayer:    nameOf(g.HitPlayer),
		LiftPlayer:   nameOf(g.LiftPlayer),
		MarketActive: g.MarketActive,
		RoundActive:  g.RoundActive,
		FairValue:    g.FairValue,
	}
	for i, p := range g.Players {
		record := make([]Entry, len(p.Record))
		copy(record, p.Record)
		var contract *Contract
		if p.Contract != nil {
			c := *p.Contract
			contract = &c
		}
		s.Players[i] = PlayerSnapshot{
			Username:      p.Name,
			Status:        p.Status,
			LastActive:    p.LastActive,
			HighLow:       optional(p.HighLow),
			Contract:      contract,
			BuyCount:      p.BuyCount,
			SellCount:     p.SellCount,
			Record:        record,
			CumulativePnL: p.CumulativePnL,
		}
	}
	if g.Dices != nil {
		s.Dices = make([]int, len(g.Dices))
		for i, d := range g.Dices {
			s.Dices[i] = d.Value
		}
	}
	if g.Coin != nil {
		s.Coin = optional(g.Coin.Value)
	}
	return s
}

// FromSnapshot rebuilds a game. Quote references are re-resolved against
// the rebuilt player list; a quote whose owner has gone is dropped, so the
// next attempt to take it is rejected as having no quote.
func FromSnapshot(s *Snapshot, opts ...Option) *Game {
	g := New(opts...)
	if s == nil {
		return g
	}

	for _, ps := range s.Players {
		status := ps.Status
		if status == "" {
			status = StatusActive
		}
		p := &Player{
			Name:          ps.Username,
			Status:        status,
			LastActive:    ps.LastActive,
			Contract:      ps.Contract,
			BuyCount:      ps.BuyCount,
			SellCount:     ps.SellCount,
			Record:        ps.Record,
			CumulativePnL: ps.CumulativePnL,
		}
		if ps.HighLow != nil {
			p.HighLow = *ps.HighLow
		}
		g.Players = append(g.Players, p)
	}

	g.Host = s.Host
	g.PlayerCount = len(g.Players)
	g.CurrentRound = s.CurrentRound
	g.Timer = s.Timer
	g.MarketActive = s.MarketActive
	g.RoundActive = s.RoundActive
	g.FairValue = s.FairValue

	if s.Dices != nil {
		g.Dices = make([]*Dice, len(s.Dices))
		for i, v := range s.Dices {
			g.Dices[i] = &Dice{Value: v}
		}
	}
	if s.Coin != nil {
		g.Coin.Value = *s.Coin
	}

	g.CurrentBid, g.CurrentAsk = s.CurrentBid, s.CurrentAsk
	if g.CurrentAsk == 0 {
		g.CurrentAsk = NoAsk
	}
	g.BidPlayer = g.resolve(s.BidPlayer)
	g.AskPlayer = g.resolve(s.AskPlayer)
	g.HitPlayer = g.resolve(s.HitPlayer)
	g.LiftPlayer = g.resolve(s.LiftPlayer)
	// A side survives only with both a resolvable owner and a live price.
	if g.BidPlayer == nil || g.CurrentBid < MinQuote || g.CurrentBid > MaxQuote {
		g.clearBid()
	}
	if g.AskPlayer == nil || g.CurrentAsk < MinQuote || g.CurrentAsk > MaxQuote {
		g.clearAsk()
	}
	return g
}

func (g *Game) resolve(name *string) *Player {
	if name == nil {
		return nil
	}
	p, _ := g.Player(*name)
	return p
}

func nameOf(p *Player) *string {
	if p == nil {
		return nil
	}
	name := p.Name
	return &name
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
