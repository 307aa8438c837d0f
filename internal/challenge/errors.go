package challenge

import "errors"

// Protocol errors. Session lookup and concurrency errors come from the
// session package; funds errors come from the ledger.
var (
	ErrUnknownGame    = errors.New("unknown game")
	ErrSelfChallenge  = errors.New("cannot challenge yourself")
	ErrPendingSession = errors.New("user already has a session in progress")
	ErrUnauthorized   = errors.New("not a party to this session")
	ErrNotResponder   = errors.New("only the challenged user may respond")
	ErrNotInitiator   = errors.New("only the challenger may cancel")
	ErrNotActive      = errors.New("session is not active")
	ErrInvalidStake   = errors.New("stake must not be negative")
	ErrStakeTooHigh   = errors.New("stake exceeds the maximum")
)
