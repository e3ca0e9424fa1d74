package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"hilo/internal/game"
	"hilo/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Store persists rooms. Load accepts either a room ID or a room code and
// returns store.ErrRoomNotFound for neither.
type Store interface {
	Create(ctx context.Context, r *store.Room) error
	Load(ctx context.Context, idOrCode string) (*store.Room, error)
	Save(ctx context.Context, r *store.Room) error
	Delete(ctx context.Context, id string) error
	CodeExists(ctx context.Context, code string) (bool, error)
	NameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]*store.Room, error)
}

// History records settled rounds. Stores that keep no history simply don't
// implement it.
type History interface {
	SaveRound(ctx context.Context, rec *store.RoundRecord) error
	RoomHistory(ctx context.Context, roomID string, limit int) ([]*store.RoundRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error)
}

const (
	codeLength   = 6
	codeAttempts = 10
	codeLetters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Config holds the room service settings
type Config struct {
	DefaultMaxPlayers int
	// MaxPlayersCap bounds the max_players a room may ask for.
	MaxPlayersCap int
	RoundDuration time.Duration
	IdleTTL       time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		DefaultMaxPlayers: 10,
		MaxPlayersCap:     10,
		RoundDuration:     300 * time.Second,
		IdleTTL:           24 * time.Hour,
	}
}

// Service runs game operations against stored rooms. Every mutating call
// loads the room, applies one engine operation and saves it while holding
// that room's lock, then publishes the resulting event.
type Service struct {
	store     Store
	history   History
	publisher Publisher
	locks     Locker
	logger    *zap.Logger
	cfg       Config
	gameOpts  []game.Option
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLocker replaces the per-room registry.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locks = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGameOptions adds options to every game the service rebuilds. A
// *rand.Rand passed here is shared across rooms and is not safe for
// concurrent use.
func WithGameOptions(opts ...game.Option) Option {
	return func(s *Service) { s.gameOpts = append(s.gameOpts, opts...) }
}

func NewService(st Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: nopPublisher{},
		locks:     NewRegistry(),
		logger:    zap.NewNop(),
		cfg:       cfg,
		now:       time.Now,
	}
	if h, ok := st.(History); ok {
		s.history = h
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.DefaultMaxPlayers <= 0 {
		s.cfg.DefaultMaxPlayers = DefaultConfig().DefaultMaxPlayers
	}
	if s.cfg.MaxPlayersCap < s.cfg.DefaultMaxPlayers {
		s.cfg.MaxPlayersCap = s.cfg.DefaultMaxPlayers
	}
	return s
}

// CreateRoomRequest describes a new room and the player creating it.
type CreateRoomRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	IsPrivate  bool   `json:"is_private"`
	Username   string `json:"username"`
	MaxPlayers int    `json:"max_players"`
}

// RoomSummary is the public listing view of a room.
type RoomSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Players     []string `json:"players"`
	PlayerCount int      `json:"player_count"`
	MaxPlayers  int      `json:"max_players"`
	IsPrivate   bool     `json:"is_private"`
	RoomCode    string   `json:"room_code"`
	RoundActive bool     `json:"round_active"`
}

func summaryOf(r *store.Room) RoomSummary {
	sum := RoomSummary{
		ID:         r.ID,
		Name:       r.Name,
		Players:    []string{},
		MaxPlayers: r.MaxPlayers,
		IsPrivate:  r.IsPrivate,
		RoomCode:   r.Code,
	}
	if r.Game != nil {
		for _, p := range r.Game.Players {
			sum.Players = append(sum.Players, p.Username)
		}
		sum.PlayerCount = len(r.Game.Players)
		sum.RoundActive = r.Game.RoundActive
	}
	return sum
}

// CreateRoom creates a room with its creator seated as host.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomSummary, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	if req.Name == "" || req.Username == "" {
		return nil, game.Errorf(ErrMissingField, "room name and username are required")
	}
	if req.IsPrivate && req.Password == "" {
		return nil, game.Errorf(ErrMissingField, "private rooms need a password")
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = s.cfg.DefaultMaxPlayers
	}
	if req.MaxPlayers < game.MinPlayers || req.MaxPlayers > s.cfg.MaxPlayersCap {
		return nil, game.Errorf(ErrInvalidMaxPlayers, "max players must be between %d and %d, got %d",
			game.MinPlayers, s.cfg.MaxPlayersCap, req.MaxPlayers)
	}

	taken, err := s.store.NameExists(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("check room name: %w", err)
	}
	if taken {
		return nil, game.Errorf(ErrRoomNameTaken, "room name %q is already taken", req.Name)
	}

	code, err := s.newRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	var hash string
	if req.IsPrivate {
		b, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(b)
	}

	id := uuid.New().String()
	g := s.newGame(id)
	host := game.NewPlayer(req.Username)
	host.LastActive = s.now()
	if err := g.Join(host); err != nil {
		return nil, err
	}

	r := &store.Room{
		ID:           id,
		Code:         code,
		Name:         req.Name,
		PasswordHash: hash,
		IsPrivate:    req.IsPrivate,
		MaxPlayers:   req.MaxPlayers,
		Game:         g.Snapshot(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			return nil, game.Errorf(ErrRoomNameTaken, "room name %q is already taken", req.Name)
		}
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.logger.Info("room created",
		zap.String("room_id", r.ID),
		zap.String("room_code", r.Code),
		zap.String("host", req.Username),
		zap.Bool("private", req.IsPrivate))
	sum := summaryOf(r)
	return &sum, nil
}

// newRoomCode draws random codes until one is unused.
func (s *Service) newRoomCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		b := make([]byte, codeLength)
		for j := range b {
			b[j] = codeLetters[rand.Intn(len(codeLetters))]
		}
		code := string(b)
		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", codeAttempts)
}

func (s *Service) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	rooms, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, summaryOf(r))
	}
	return out, nil
}

// Room returns the listing view of one room.
func (s *Service) Room(ctx context.Context, idOrCode string) (*RoomSummary, error) {
	r, err := s.load(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	sum := summaryOf(r)
	return &sum, nil
}

// Snapshot returns the stored game state of a room.
func (s *Service) Snapshot(ctx context.Context, idOrCode string) (*game.Snapshot, error) {
	r, err := s.load(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	return r.Game, nil
}

// Join seats username in the room identified by ID or code.
func (s *Service) Join(ctx context.Context, idOrCode, username, password string) (*Roster, error) {
	username = strings.TrimSpace(username)
	if idOrCode == "" || username == "" {
		return nil, game.Errorf(ErrMissingField, "room and username are required")
	}
	var roster *Roster
	joined, err := s.mutate(ctx, idOrCode, func(r *store.Room, g *game.Game) error {
		if r.IsPrivate {
			if err := bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)); err != nil {
				return game.Errorf(ErrInvalidPassword, "invalid password for room %q", r.Name)
			}
		}
		if _, exists := g.Player(username); !exists && g.PlayerCount >= r.MaxPlayers {
			return game.Errorf(ErrRoomFull, "room %q is full (%d players)", r.Name, r.MaxPlayers)
		}
		p := game.NewPlayer(username)
		p.LastActive = s.now()
		if err := g.Join(p); err != nil {
			return err
		}
		roster = rosterOf(r.ID, g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(joined.ID, Event{
		Type:    EventPlayerJoined,
		Success: true,
		Message: fmt.Sprintf("%s joined the room", username),
		Data:    roster,
	})
	return roster, nil
}

// Leave removes username from the room. The last player out deletes the
// room; the returned roster then has no players.
func (s *Service) Leave(ctx context.Context, roomID, username string) (*Roster, error) {
	if roomID == "" || username == "" {
		return nil, game.Errorf(ErrMissingField, "room and username are required")
	}
	roomID, err := s.resolveID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(roomID)
	r, g, err := s.loadGame(ctx, roomID)
	if err != nil {
		unlock()
		return nil, err
	}
	remaining, err := g.Leave(username)
	if err != nil {
		unlock()
		return nil, err
	}
	if remaining == 0 {
		err = s.store.Delete(ctx, roomID)
		unlock()
		if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
			return nil, fmt.Errorf("delete room %s: %w", roomID, err)
		}
		s.logger.Info("room deleted", zap.String("room_id", roomID), zap.String("reason", "empty"))
		return &Roster{RoomID: roomID, Players: []string{}}, nil
	}
	err = s.save(ctx, r, g)
	unlock()
	if err != nil {
		return nil, err
	}

	roster := rosterOf(roomID, g)
	s.publish(roomID, Event{
		Type:    EventPlayerLeft,
		Success: true,
		Message: fmt.Sprintf("%s left the room", username),
		Data:    roster,
	})
	return roster, nil
}

// SetStatus records a player's connection status.
func (s *Service) SetStatus(ctx context.Context, roomID, username, status string) error {
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		return g.SetStatus(username, status)
	})
	if err != nil {
		return err
	}
	s.publish(r.ID, Event{
		Type:    EventPlayerStatus,
		Success: true,
		Data:    PlayerStatus{Username: username, Status: status},
	})
	return nil
}

func (s *Service) StartGame(ctx context.Context, roomID string) error {
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		return g.StartGame()
	})
	if err != nil {
		return err
	}
	s.publish(r.ID, Event{
		Type:    EventStartGame,
		Success: true,
		Message: fmt.Sprintf("round %d started", r.Game.CurrentRound),
		Data:    r.Game,
	})
	return nil
}

// StartNewRound starts a round, abandoning any round still in progress.
func (s *Service) StartNewRound(ctx context.Context, roomID string) error {
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		return g.StartNewRound()
	})
	if err != nil {
		return err
	}
	s.publish(r.ID, Event{
		Type:    EventStartRound,
		Success: true,
		Message: fmt.Sprintf("round %d started", r.Game.CurrentRound),
		Data:    r.Game,
	})
	return nil
}

// MakeMarket places a bid or an ask for username.
func (s *Service) MakeMarket(ctx context.Context, roomID, username, action string, number int) (string, error) {
	var msg string
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		var err error
		msg, err = g.MakeTheMarket(username, action, number)
		return err
	})
	if err != nil {
		return "", err
	}
	s.publish(r.ID, Event{
		Type:    EventMarketUpdate,
		Success: true,
		Message: msg,
		Data:    quotesOf(r.Game),
	})
	return msg, nil
}

// TakeMarket hits the bid or lifts the ask for username.
func (s *Service) TakeMarket(ctx context.Context, roomID, username, action string) (string, error) {
	var msg string
	var fill game.Fill
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		var err error
		fill, msg, err = g.TakeTheMarket(username, action)
		return err
	})
	if err != nil {
		return "", err
	}
	q := quotesOf(r.Game)
	q.Fill = &fill
	s.publish(r.ID, Event{
		Type:    EventMarketUpdate,
		Success: true,
		Message: msg,
		Data:    q,
	})
	return msg, nil
}

// EndRound settles the active round and records it in the history.
func (s *Service) EndRound(ctx context.Context, roomID string) (*game.RoundSummary, error) {
	return s.endRound(ctx, roomID, func(*game.Game) bool { return true })
}

// endRound settles the round if due reports true for the freshly loaded
// game. A nil summary with no error means it was not due.
func (s *Service) endRound(ctx context.Context, roomID string, due func(*game.Game) bool) (*game.RoundSummary, error) {
	var summary *game.RoundSummary
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		if !due(g) {
			return errNotDue
		}
		var err error
		summary, err = g.EndRound()
		return err
	})
	if errors.Is(err, errNotDue) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roomID = r.ID

	if s.history != nil {
		rec := &store.RoundRecord{
			RoomID:    roomID,
			RoomName:  r.Name,
			Round:     summary.Round,
			FairValue: summary.FairValue,
			EndedAt:   s.now().UTC(),
			Results:   summary.Results,
		}
		if err := s.history.SaveRound(ctx, rec); err != nil {
			s.logger.Error("failed to save round history",
				zap.String("room_id", roomID),
				zap.Int("round", summary.Round),
				zap.Error(err))
		}
	}

	s.publish(roomID, Event{
		Type:    EventRoundEnded,
		Success: true,
		Message: fmt.Sprintf("round %d ended, fair value %d", summary.Round, summary.FairValue),
		Data:    summary,
	})
	return summary, nil
}

var errNotDue = errors.New("round not due")

// CloseMarket stops all trading in the room.
func (s *Service) CloseMarket(ctx context.Context, roomID string) error {
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		g.CloseMarket()
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(r.ID, Event{
		Type:    EventMarketClosed,
		Success: true,
		Message: "market closed",
	})
	return nil
}

// OpenMarket lifts a CloseMarket so rounds can start again.
func (s *Service) OpenMarket(ctx context.Context, roomID string) error {
	r, err := s.mutate(ctx, roomID, func(_ *store.Room, g *game.Game) error {
		g.OpenMarket()
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(r.ID, Event{
		Type:    EventMarketOpened,
		Success: true,
		Message: "market opened",
	})
	return nil
}

// History returns the most recent settled rounds of a room.
func (s *Service) History(ctx context.Context, idOrCode string, limit int) ([]*store.RoundRecord, error) {
	r, err := s.load(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []*store.RoundRecord{}, nil
	}
	recs, err := s.history.RoomHistory(ctx, r.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("room history: %w", err)
	}
	if recs == nil {
		recs = []*store.RoundRecord{}
	}
	return recs, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	if s.history == nil {
		return []store.LeaderboardEntry{}, nil
	}
	entries, err := s.history.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	return entries, nil
}

// ExpireRounds ends every round that has run for at least the configured
// round duration and returns how many were settled.
func (s *Service) ExpireRounds(ctx context.Context, now time.Time) (int, error) {
	rooms, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}
	due := func(g *game.Game) bool {
		return g.RoundActive && g.RoundAge(now) >= s.cfg.RoundDuration
	}

	ended := 0
	for _, r := range rooms {
		if r.Game == nil || !r.Game.RoundActive {
			continue
		}
		summary, err := s.endRound(ctx, r.ID, due)
		if err != nil {
			if game.KindOf(err) == game.KindInternal {
				return ended, err
			}
			continue
		}
		if summary != nil {
			ended++
			s.logger.Info("round expired",
				zap.String("room_id", r.ID),
				zap.Int("round", summary.Round))
		}
	}
	return ended, nil
}

// PruneIdleRooms deletes rooms in which nobody is connected and nothing has
// changed for the idle TTL.
func (s *Service) PruneIdleRooms(ctx context.Context, now time.Time) (int, error) {
	rooms, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	pruned := 0
	for _, candidate := range rooms {
		if !idle(candidate, now, s.cfg.IdleTTL) {
			continue
		}
		unlock := s.locks.Lock(candidate.ID)
		r, err := s.store.Load(ctx, candidate.ID)
		if err == nil && idle(r, now, s.cfg.IdleTTL) {
			err = s.store.Delete(ctx, r.ID)
			if err == nil {
				pruned++
				s.logger.Info("room deleted", zap.String("room_id", r.ID), zap.String("reason", "idle"))
			}
		}
		unlock()
		if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
			return pruned, fmt.Errorf("prune room %s: %w", candidate.ID, err)
		}
	}
	return pruned, nil
}

func idle(r *store.Room, now time.Time, ttl time.Duration) bool {
	if now.Sub(r.UpdatedAt) < ttl {
		return false
	}
	if r.Game == nil {
		return true
	}
	for _, p := range r.Game.Players {
		if p.Status != game.StatusDisconnected {
			return false
		}
	}
	return true
}

// mutate runs fn on the room's game under the room lock and saves the
// result. The lock is always keyed by room ID, whether the caller passed an
// ID or a code. Nothing is saved when fn fails.
func (s *Service) mutate(ctx context.Context, idOrCode string, fn func(*store.Room, *game.Game) error) (*store.Room, error) {
	unlock := s.locks.Lock(idOrCode)
	defer func() { unlock() }()

	r, g, err := s.loadGame(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	if r.ID != idOrCode {
		// Looked up by code: move to the ID lock and reload under it.
		unlock()
		unlock = s.locks.Lock(r.ID)
		if r, g, err = s.loadGame(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	if err := fn(r, g); err != nil {
		return nil, err
	}
	if err := s.save(ctx, r, g); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) load(ctx context.Context, idOrCode string) (*store.Room, error) {
	r, err := s.store.Load(ctx, idOrCode)
	if errors.Is(err, store.ErrRoomNotFound) {
		return nil, game.Errorf(ErrRoomNotFound, "room %q not found", idOrCode)
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", idOrCode, err)
	}
	return r, nil
}

// resolveID maps a room code to the room's ID so locking is always keyed
// by ID.
func (s *Service) resolveID(ctx context.Context, idOrCode string) (string, error) {
	r, err := s.load(ctx, idOrCode)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *Service) loadGame(ctx context.Context, roomID string) (*store.Room, *game.Game, error) {
	r, err := s.load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	return r, game.FromSnapshot(r.Game, s.gameOptions(r.ID)...), nil
}

func (s *Service) save(ctx context.Context, r *store.Room, g *game.Game) error {
	r.Game = g.Snapshot()
	if err := s.store.Save(ctx, r); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return game.Errorf(ErrRoomNotFound, "room %q not found", r.ID)
		}
		return fmt.Errorf("save room %s: %w", r.ID, err)
	}
	return nil
}

func (s *Service) newGame(roomID string) *game.Game {
	return game.New(s.gameOptions(roomID)...)
}

func (s *Service) gameOptions(roomID string) []game.Option {
	opts := []game.Option{
		game.WithLogger(s.logger.With(zap.String("room_id", roomID))),
		game.WithClock(s.now),
	}
	return append(opts, s.gameOpts...)
}

func (s *Service) publish(roomID string, ev Event) {
	s.publisher.Publish(roomID, ev)
}
