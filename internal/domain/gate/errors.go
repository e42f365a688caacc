package gate

import "errors"

// Verification rejections. All of them are mapped to user-facing messages at
// the HTTP boundary; none carries internal detail. Tampered tokens reuse
// token.ErrTamperedToken.
var (
	// ErrUnknownOrExpired: no pending key and the ledger does not show the
	// transaction as admitted — the code was never valid or has expired.
	ErrUnknownOrExpired = errors.New("gate: transaction not found or expired")

	// ErrAlreadyAdmitted: no pending key but the ledger says "In" — a replay
	// of a consumed code.
	ErrAlreadyAdmitted = errors.New("gate: entry already processed")

	// ErrSecurityKeyMismatch: the token decrypts but carries a key from an
	// older mint generation.
	ErrSecurityKeyMismatch = errors.New("gate: security check failed")

	// ErrRestoreDenied: wrong restore key or no running session.
	ErrRestoreDenied = errors.New("gate: restore denied")

	// ErrDuplicateTransaction: an online payment reused an id already in the
	// ledger.
	ErrDuplicateTransaction = errors.New("gate: transaction id already exists")
)
