package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	StatusActive       = "active"
	StatusDisconnected = "disconnected"
)

// Record entry kinds.
const (
	KindBid      = "bid"
	KindAsk      = "ask"
	KindLong     = "long"
	KindShort    = "short"
	KindDiceRoll = "dice_roll"
)

// Contract directions.
const (
	Long  = "long"
	Short = "short"
)

const (
	MinRequiredTrades = 1
	MaxRequiredTrades = 5
)

// Contract is a player's obligation for one round: trade at least
// RequiredTrades times in Direction.
type Contract struct {
	Direction      string `json:"direction"`
	RequiredTrades int    `json:"required_trades"`
}

// Fulfilled reports whether buys/sells satisfy the contract.
func (c Contract) Fulfilled(buys, sells int) bool {
	if c.Direction == Long {
		return buys >= c.RequiredTrades
	}
	return sells >= c.RequiredTrades
}

// Entry is one line of a player's round record.
type Entry struct {
	Kind  string
	Price int
}

// MarshalJSON encodes an entry as a [kind, price] pair.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Kind, e.Price})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("record entry: expected [kind, price], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Kind); err != nil {
		return fmt.Errorf("record entry kind: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Price); err != nil {
		return fmt.Errorf("record entry price: %w", err)
	}
	return nil
}

// Player is one participant in a room.
type Player struct {
	Name       string
	Status     string
	LastActive time.Time

	HighLow  string
	Contract *Contract

	BuyCount  int
	SellCount int
	Record    []Entry

	CumulativePnL int
}

func NewPlayer(name string) *Player {
	return &Player{
		Name:       name,
		Status:     StatusActive,
		LastActive: time.Now(),
	}
}

// Is reports whether name refers to this player.
func (p *Player) Is(name string) bool {
	return p != nil && strings.EqualFold(p.Name, name)
}

func (p *Player) record(kind string, price int) {
	p.Record = append(p.Record, Entry{Kind: kind, Price: price})
}

// DiceRoll returns the player's dice roll this round, if any.
func (p *Player) DiceRoll() (int, bool) {
	for _, e := range p.Record {
		if e.Kind == KindDiceRoll {
			return e.Price, true
		}
	}
	return 0, false
}

// resetRound clears everything scoped to a single round.
func (p *Player) resetRound() {
	p.Record = nil
	p.BuyCount = 0
	p.SellCount = 0
}
