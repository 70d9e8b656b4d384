package backend

import "errors"

var (
	// ErrNoLinkedAccount means the chat identity has no account-link row.
	// Handlers recover it into an instructional reply.
	ErrNoLinkedAccount = errors.New("no linked account")

	// ErrAmbiguousLink means more than one account-link row matched a single
	// chat identity. That violates the link invariant; callers should surface
	// it rather than silently pick a row.
	ErrAmbiguousLink = errors.New("ambiguous account link")

	// ErrBackendUnavailable wraps transport and query failures against the
	// hosted store. Not fatal; handlers turn it into a "try again" reply.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
