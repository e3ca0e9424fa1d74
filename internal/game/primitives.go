package game

import "math/rand"

const (
	DieFaces = 20

	High = "high"
	Low  = "low"
)

// Dice is a d20 that remembers its last roll.
type Dice struct {
	Value int
}

func (d *Dice) Roll(rng *rand.Rand) int {
	d.Value = rng.Intn(DieFaces) + 1
	return d.Value
}

// Coin decides whether fair value is the high or the low roll.
type Coin struct {
	Value string
}

func (c *Coin) Flip(rng *rand.Rand) string {
	if rng.Intn(2) == 0 {
		c.Value = High
	} else {
		c.Value = Low
	}
	return c.Value
}
