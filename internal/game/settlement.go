package game

import "go.uber.org/zap"

// UnmetContractPenalty is charged against cumulative P/L when a player ends
// a round without fulfilling their contract.
const UnmetContractPenalty = 100

// PlayerResult is one player's scoring for a settled round.
type PlayerResult struct {
	Name          string    `json:"name"`
	Contract      *Contract `json:"contract,omitempty"`
	Fulfilled     bool      `json:"fulfilled"`
	Penalty       int       `json:"penalty"`
	TradePnL      int       `json:"trade_pnl"`
	CumulativePnL int       `json:"cumulative_pnl"`
	BuyCount      int       `json:"buy_count"`
	SellCount     int       `json:"sell_count"`
}

// RoundSummary is the outcome of EndRound.
type RoundSummary struct {
	Round     int            `json:"round"`
	FairValue int            `json:"fair_value"`
	Results   []PlayerResult `json:"results"`
}

// EndRound scores the active round and resets all round-scoped state.
// Fair value is left in place but means nothing until the next round.
func (g *Game) EndRound() (*RoundSummary, error) {
	if !g.RoundActive {
		return nil, Errorf(ErrRoundNotActive, "no active round to end")
	}

	summary := &RoundSummary{
		Round:     g.CurrentRound,
		FairValue: g.FairValue,
		Results:   make([]PlayerResult, 0, len(g.Players)),
	}
	for _, p := range g.Players {
		summary.Results = append(summary.Results, settlePlayer(p, g.FairValue))
	}

	g.CurrentRound++
	g.MarketBook.Flatten()
	g.RoundActive = false
	g.Timer = g.now()

	g.logger.Info("round settled",
		zap.Int("round", summary.Round),
		zap.Int("fair_value", summary.FairValue),
		zap.Int("players", len(summary.Results)))
	return summary, nil
}

func settlePlayer(p *Player, fairValue int) PlayerResult {
	res := PlayerResult{
		Name:      p.Name,
		Contract:  p.Contract,
		Fulfilled: true,
		BuyCount:  p.BuyCount,
		SellCount: p.SellCount,
	}

	if p.Contract != nil && !p.Contract.Fulfilled(p.BuyCount, p.SellCount) {
		res.Fulfilled = false
		res.Penalty = UnmetContractPenalty
		p.CumulativePnL -= UnmetContractPenalty
	}

	res.TradePnL = TradePnL(p.Record, fairValue)
	p.CumulativePnL += res.TradePnL
	res.CumulativePnL = p.CumulativePnL

	p.resetRound()
	return res
}

// TradePnL scores long and short entries against fair value. Other entry
// kinds carry no P/L.
func TradePnL(record []Entry, fairValue int) int {
	total := 0
	for _, e := range record {
		switch e.Kind {
		case KindLong:
			total += fairValue - e.Price
		case KindShort:
			total += e.Price - fairValue
		}
	}
	return total
}
