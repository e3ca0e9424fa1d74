package game

import "go.uber.org/zap"

// startRound hands out this round's private information. The caller has
// already sized the dice pool and checked there are enough players.
//
//  1. one random player learns whether fair value is the high or low roll
//  2. each die goes to a distinct other player
//  3. fair value is the max or min of the rolls
//  4. everyone else gets a contract
func (g *Game) startRound() {
	for _, p := range g.Players {
		p.HighLow = ""
		p.Contract = nil
	}

	bearer := g.Players[g.rng.Intn(len(g.Players))]
	bearer.HighLow = g.Coin.Flip(g.rng)

	eligible := make([]*Player, 0, len(g.Players)-1)
	for _, p := range g.Players {
		if p != bearer {
			eligible = append(eligible, p)
		}
	}

	rolls := make([]int, len(g.Dices))
	for i, d := range g.Dices {
		rolls[i] = d.Roll(g.rng)
	}

	recipients := make(map[*Player]bool, len(rolls))
	perm := g.rng.Perm(len(eligible))
	for i, roll := range rolls {
		p := eligible[perm[i]]
		p.record(KindDiceRoll, roll)
		recipients[p] = true
	}

	g.FairValue = fairValue(bearer.HighLow, rolls)

	for _, p := range eligible {
		if recipients[p] {
			continue
		}
		direction := Long
		if g.rng.Intn(2) == 1 {
			direction = Short
		}
		p.Contract = &Contract{
			Direction:      direction,
			RequiredTrades: MinRequiredTrades + g.rng.Intn(MaxRequiredTrades-MinRequiredTrades+1),
		}
	}

	g.logger.Debug("round signals assigned",
		zap.Int("round", g.CurrentRound),
		zap.String("signal_bearer", bearer.Name),
		zap.String("high_low", bearer.HighLow),
		zap.Ints("rolls", rolls))
}

func fairValue(highLow string, rolls []int) int {
	v := rolls[0]
	for _, r := range rolls[1:] {
		if highLow == High && r > v {
			v = r
		}
		if highLow == Low && r < v {
			v = r
		}
	}
	return v
}
