package game

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation. None of the kinds are fatal: the
// room stays intact and the initiating client gets the message back.
type Kind int

const (
	KindInternal   Kind = iota // not a game error; transport reports a generic failure
	KindValidation             // malformed input, no state consulted
	KindNotFound               // unknown player or room
	KindConflict               // rejected by current engine state
	KindCapacity               // room full or name taken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	default:
		return "internal"
	}
}

// Error is a rejected operation. Two errors are the same (errors.Is) when
// their codes match, so sentinel values can carry a generic message while
// returned errors carry a specific one.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an error of the given kind.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Errorf returns a copy of sentinel with a formatted message.
func Errorf(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrDuplicateName    = NewError(KindCapacity, "duplicate_name", "username taken")
	ErrPlayerNotFound   = NewError(KindNotFound, "player_not_found", "player not found")
	ErrInvalidAction    = NewError(KindValidation, "invalid_action", "invalid action")
	ErrInvalidNumber    = NewError(KindValidation, "invalid_number", "number must be an integer between 1 and 20")
	ErrStaleQuote       = NewError(KindConflict, "stale_quote", "quote does not improve the market")
	ErrCrossedQuote     = NewError(KindConflict, "crossed_quote", "quote would cross the market")
	ErrNoQuote          = NewError(KindConflict, "no_quote", "no live quote to take")
	ErrSelfTrade        = NewError(KindConflict, "self_trade", "cannot trade against your own quote")
	ErrRoundActive      = NewError(KindConflict, "round_active", "a round is already running")
	ErrRoundNotActive   = NewError(KindConflict, "round_not_active", "no active round")
	ErrMarketClosed     = NewError(KindConflict, "market_closed", "the market is closed")
	ErrNotEnoughPlayers = NewError(KindConflict, "not_enough_players", "not enough players to start a round")
)

// KindOf reports the kind of err, or KindInternal if err is not a game error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Outcome is the success/failure result relayed to the initiating client.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// OutcomeOf converts an operation result into an Outcome. Internal errors
// are reduced to a generic message; their details belong in the log.
func OutcomeOf(message string, err error) Outcome {
	if err == nil {
		return Outcome{Success: true, Message: message}
	}
	if KindOf(err) == KindInternal {
		return Outcome{Success: false, Message: "internal error"}
	}
	return Outcome{Success: false, Message: err.Error()}
}
