package services

import "errors"

// Kind classifies a service error for transport-level mapping. Handlers
// switch on KindOf instead of enumerating every sentinel.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindForbidden
	KindClosed
	KindCircular
	KindQuota
	KindConflict
)

// Error is a service-level error with a classification. Two Errors match
// under errors.Is when their kinds match and the target's message is empty
// or equal, so tests can assert on bare kinds.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrBoardNotFound       = newError(KindNotFound, "board not found")
	ErrCardNotFound        = newError(KindNotFound, "card not found")
	ErrColumnNotFound      = newError(KindNotFound, "column not found on this board")
	ErrParticipantNotFound = newError(KindNotFound, "participant not found")

	ErrBoardClosed = newError(KindClosed, "board is closed")
	ErrForbidden   = newError(KindForbidden, "not allowed")

	ErrCircularRelationship = newError(KindCircular, "link would create a circular relationship")
	ErrAlreadyHasParent     = newError(KindValidation, "target card already has a parent")
	ErrInvalidCardKind      = newError(KindValidation, "invalid card kind")
	ErrInvalidLinkKind      = newError(KindValidation, "invalid link kind")
	ErrDifferentBoards      = newError(KindValidation, "cards belong to different boards")
	ErrParentKindMismatch   = newError(KindValidation, "parent links require feedback cards on both sides")
	ErrSourceNotAction      = newError(KindValidation, "linked-card references require an action card source")
	ErrTargetNotFeedback    = newError(KindValidation, "linked-card references require a feedback card target")
	ErrEmptyContent         = newError(KindValidation, "content must not be empty")
	ErrEmptyName            = newError(KindValidation, "name must not be empty")
	ErrNoColumns            = newError(KindValidation, "a board needs at least one column")

	ErrCardQuotaReached     = newError(KindQuota, "card limit for this board reached")
	ErrReactionQuotaReached = newError(KindQuota, "reaction limit for this board reached")

	ErrAccessKeyExhausted = newError(KindConflict, "could not generate a unique access key")
)

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindUnknown and should surface as internal failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
