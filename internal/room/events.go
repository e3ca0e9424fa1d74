package room

import "hilo/internal/game"

// Event types fanned out to a room's subscribers.
const (
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventPlayerStatus = "player_status"
	EventStartGame    = "start_game"
	EventStartRound   = "start_round"
	EventMarketUpdate = "market_update"
	EventRoundEnded   = "round_ended"
	EventMarketClosed = "market_closed"
	EventMarketOpened = "market_opened"
)

// Event is a message for every subscriber of a room. Rejections use the
// same shape with Success false and go to the sender only.
type Event struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Publisher fans events out to a room's subscribers.
type Publisher interface {
	Publish(roomID string, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}

// Roster is the membership view sent on join and leave.
type Roster struct {
	RoomID     string   `json:"room_id"`
	Players    []string `json:"players"`
	Host       string   `json:"host"`
	NumPlayers int      `json:"num_players"`
}

type PlayerStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Quotes is the book state after a quote or a trade.
type Quotes struct {
	CurrentBid int        `json:"current_bid"`
	CurrentAsk int        `json:"current_ask"`
	BidPlayer  *string    `json:"bid_player"`
	AskPlayer  *string    `json:"ask_player"`
	HitPlayer  *string    `json:"hit_player"`
	LiftPlayer *string    `json:"lift_player"`
	Fill       *game.Fill `json:"fill,omitempty"`
}

func rosterOf(roomID string, g *game.Game) *Roster {
	return &Roster{
		RoomID:     roomID,
		Players:    g.Names(),
		Host:       g.Host,
		NumPlayers: g.PlayerCount,
	}
}

func quotesOf(s *game.Snapshot) *Quotes {
	return &Quotes{
		CurrentBid: s.CurrentBid,
		CurrentAsk: s.CurrentAsk,
		BidPlayer:  s.BidPlayer,
		AskPlayer:  s.AskPlayer,
		HitPlayer:  s.HitPlayer,
		LiftPlayer: s.LiftPlayer,
	}
}
