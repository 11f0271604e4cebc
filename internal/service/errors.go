package service

import (
	"context"
	"errors"
)

// Kind 是业务错误的分类，决定 HTTP 状态码和实时通道中的错误码。
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// Error 是带分类的业务错误。包级变量按指针比较，可直接用于 errors.Is。
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrRoomNotFound       = newError(KindNotFound, "room not found")
	ErrGameNotFound       = newError(KindNotFound, "game not found")
	ErrPlayerNotInRoom    = newError(KindNotFound, "player is not in this room")
	ErrFriendshipNotFound = newError(KindNotFound, "friendship not found")
	ErrAnswerNotFound     = newError(KindNotFound, "no answer has been submitted this turn")

	ErrRoomFull            = newError(KindConflict, "room is full")
	ErrRoomAlreadyStarted  = newError(KindConflict, "room has already started")
	ErrRoomNotActive       = newError(KindConflict, "room is not in an active game")
	ErrRoomClosed          = newError(KindConflict, "room is no longer open")
	ErrFriendshipExists    = newError(KindConflict, "friendship already exists")
	ErrInsufficientPlayers = newError(KindConflict, "at least two active players are required")

	ErrNotHost           = newError(KindForbidden, "only the host can do this")
	ErrWrongTurn         = newError(KindForbidden, "it is not your turn")
	ErrInvalidVoter      = newError(KindForbidden, "the current player cannot vote")
	ErrNotARoomMember    = newError(KindForbidden, "you are not a member of this room")
	ErrPlayerNotActive   = newError(KindForbidden, "player is no longer active in this room")
	ErrFriendshipBlocked = newError(KindForbidden, "friendship is blocked")
	ErrOwnRequest        = newError(KindForbidden, "cannot accept your own friend request")

	ErrInvalidRoomCode    = newError(KindValidation, "room code must be 6 letters or digits")
	ErrInvalidMaxPlayers  = newError(KindValidation, "max players must be between 2 and 20")
	ErrQuestionNotOffered = newError(KindValidation, "question is not offered this turn")
	ErrInvalidInput       = newError(KindValidation, "invalid input")

	ErrInvalidCredential = newError(KindUnauthenticated, "invalid credential")

	ErrRoomBusy        = newError(KindUnavailable, "room is busy, try again")
	ErrTooManyRequests = newError(KindUnavailable, "too many requests")
	ErrInternalServer  = newError(KindInternal, "internal server error")
)

// KindOf 返回错误的分类，非业务错误一律视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindInternal
}
